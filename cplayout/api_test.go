package cplayout

import (
	"encoding/binary"
	"testing"
)

func TestCheckpointV1RoundTrip(t *testing.T) {
	checkpoint := &CheckpointV1Struct{
		Flags:            CheckpointFlagSnapshot | CheckpointFlagMinor,
		CheckpointsCount: 3,
		SnapshotList: SnapshotListV1Struct{
			Next: 20,
			Prev: 0,
		},
		Cno:         10,
		CreateTime:  1600000000,
		NblkInc:     12,
		InodesCount: 100,
		BlocksCount: 400,
		IfileInode: InodeV1Struct{
			Blocks:     400,
			Size:       16384,
			Mode:       InodeModeRegularFile,
			LinksCount: 1,
			BlockRoot:  [7]uint64{7, 8, 9, 0, 0, 0, 0},
		},
	}

	checkpointBuf, err := checkpoint.MarshalCheckpointV1()
	if nil != err {
		t.Fatalf("MarshalCheckpointV1() returned error: %v", err)
	}
	if uint64(len(checkpointBuf)) != CheckpointV1Size {
		t.Fatalf("MarshalCheckpointV1() returned %v bytes (expected %v)", len(checkpointBuf), CheckpointV1Size)
	}

	unmarshaled, err := UnmarshalCheckpointV1(checkpointBuf)
	if nil != err {
		t.Fatalf("UnmarshalCheckpointV1() returned error: %v", err)
	}
	if *unmarshaled != *checkpoint {
		t.Fatalf("UnmarshalCheckpointV1() returned %+v (expected %+v)", unmarshaled, checkpoint)
	}

	// the snapshot list links land at the documented offset
	next := binary.LittleEndian.Uint64(checkpointBuf[CheckpointV1SnapshotListOffset : CheckpointV1SnapshotListOffset+8])
	if 20 != next {
		t.Fatalf("SnapshotList.Next landed at the wrong offset (read %v)", next)
	}

	_, err = UnmarshalCheckpointV1(checkpointBuf[:CheckpointV1Size-1])
	if nil == err {
		t.Fatalf("UnmarshalCheckpointV1() of a truncated buffer should have failed")
	}
}

func TestCpfileHeaderV1RoundTrip(t *testing.T) {
	header := &CpfileHeaderV1Struct{
		Ncheckpoints: 5,
		Nsnapshots:   2,
		SnapshotList: SnapshotListV1Struct{
			Next: 10,
			Prev: 30,
		},
	}

	headerBuf, err := header.MarshalCpfileHeaderV1()
	if nil != err {
		t.Fatalf("MarshalCpfileHeaderV1() returned error: %v", err)
	}
	if uint64(len(headerBuf)) != CpfileHeaderV1Size {
		t.Fatalf("MarshalCpfileHeaderV1() returned %v bytes (expected %v)", len(headerBuf), CpfileHeaderV1Size)
	}

	unmarshaled, err := UnmarshalCpfileHeaderV1(headerBuf)
	if nil != err {
		t.Fatalf("UnmarshalCpfileHeaderV1() returned error: %v", err)
	}
	if *unmarshaled != *header {
		t.Fatalf("UnmarshalCpfileHeaderV1() returned %+v (expected %+v)", unmarshaled, header)
	}

	// the sentinel links land at the documented offset
	next := binary.LittleEndian.Uint64(headerBuf[CpfileHeaderV1SnapshotListOffset : CpfileHeaderV1SnapshotListOffset+8])
	if 10 != next {
		t.Fatalf("header SnapshotList.Next landed at the wrong offset (read %v)", next)
	}
}

func TestFlagBits(t *testing.T) {
	var checkpoint CheckpointV1Struct

	if checkpoint.IsInvalid() || checkpoint.IsSnapshot() || checkpoint.IsMinor() {
		t.Fatalf("zero-valued checkpoint entry has flags set")
	}

	checkpoint.SetInvalid()
	if !checkpoint.IsInvalid() {
		t.Fatalf("SetInvalid() did not set INVALID")
	}
	checkpoint.ClearInvalid()
	if checkpoint.IsInvalid() {
		t.Fatalf("ClearInvalid() did not clear INVALID")
	}

	checkpoint.SetSnapshot()
	checkpoint.SetMinor()
	if !checkpoint.IsSnapshot() || !checkpoint.IsMinor() {
		t.Fatalf("SetSnapshot()/SetMinor() did not set the expected bits")
	}
	checkpoint.ClearSnapshot()
	if checkpoint.IsSnapshot() || !checkpoint.IsMinor() {
		t.Fatalf("ClearSnapshot() cleared the wrong bits")
	}
}

func TestInPlaceAccessors(t *testing.T) {
	checkpoint := &CheckpointV1Struct{
		Flags:            CheckpointFlagInvalid,
		CheckpointsCount: 7,
	}

	checkpointBuf, err := checkpoint.MarshalCheckpointV1()
	if nil != err {
		t.Fatalf("MarshalCheckpointV1() returned error: %v", err)
	}

	flags, err := GetCheckpointFlagsV1(checkpointBuf)
	if nil != err {
		t.Fatalf("GetCheckpointFlagsV1() returned error: %v", err)
	}
	if CheckpointFlagInvalid != flags {
		t.Fatalf("GetCheckpointFlagsV1() returned 0x%X", flags)
	}

	count, err := GetCheckpointsCountV1(checkpointBuf)
	if nil != err {
		t.Fatalf("GetCheckpointsCountV1() returned error: %v", err)
	}
	if 7 != count {
		t.Fatalf("GetCheckpointsCountV1() returned %v", count)
	}

	err = PutCheckpointsCountV1(checkpointBuf, 8)
	if nil != err {
		t.Fatalf("PutCheckpointsCountV1() returned error: %v", err)
	}
	err = PutCheckpointFlagsV1(checkpointBuf, 0)
	if nil != err {
		t.Fatalf("PutCheckpointFlagsV1() returned error: %v", err)
	}

	unmarshaled, err := UnmarshalCheckpointV1(checkpointBuf)
	if nil != err {
		t.Fatalf("UnmarshalCheckpointV1() returned error: %v", err)
	}
	if (0 != unmarshaled.Flags) || (8 != unmarshaled.CheckpointsCount) {
		t.Fatalf("in-place accessors produced %+v", unmarshaled)
	}

	err = PutCheckpointsCountV1(checkpointBuf[:4], 1)
	if nil == err {
		t.Fatalf("PutCheckpointsCountV1() on a too-short buffer should have failed")
	}
}

func TestInodeV1RoundTrip(t *testing.T) {
	inode := &InodeV1Struct{
		Blocks:     16,
		Size:       65536,
		Ctime:      1600000000,
		Mtime:      1600000001,
		UID:        1000,
		GID:        1000,
		Mode:       InodeModeRegularFile,
		LinksCount: 1,
		BlockRoot:  [7]uint64{1, 2, 3, 4, 5, 6, 7},
		Generation: 42,
	}

	inodeBuf, err := inode.MarshalInodeV1()
	if nil != err {
		t.Fatalf("MarshalInodeV1() returned error: %v", err)
	}
	if uint64(len(inodeBuf)) != InodeV1Size {
		t.Fatalf("MarshalInodeV1() returned %v bytes (expected %v)", len(inodeBuf), InodeV1Size)
	}

	unmarshaled, err := UnmarshalInodeV1(inodeBuf)
	if nil != err {
		t.Fatalf("UnmarshalInodeV1() returned error: %v", err)
	}
	if *unmarshaled != *inode {
		t.Fatalf("UnmarshalInodeV1() returned %+v (expected %+v)", unmarshaled, inode)
	}
}
