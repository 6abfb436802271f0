// Package cplayout describes the on-disk format of the checkpoint file
// (cpfile) of a seqfs volume.
//
// The cpfile is a sparse, block-addressable table of fixed-size checkpoint
// entries indexed by checkpoint number.  Slot 0 of block 0 holds the cpfile
// header rather than a checkpoint entry.  All fields are serialized in
// LittleEndian form via the cstruct package.
//
package cplayout

import (
	"github.com/NVIDIA/cstruct"
)

// LittleEndian is the byte order of all on-disk cpfile records.
var LittleEndian = cstruct.LittleEndian

// Well-known metadata inode numbers of a seqfs volume.
//
const (
	DatInodeNumber    uint64 = 1
	RootInodeNumber   uint64 = 2
	CpfileInodeNumber uint64 = 3
)

// Reserved checkpoint numbers.
//
// CnoNone is never a valid checkpoint number; a zero snapshot-list link means
// "the neighbor is the header sentinel".  CnoTerminator is returned by
// snapshot enumeration when the end of the snapshot list has been reached.
//
const (
	CnoNone       uint64 = 0
	CnoTerminator uint64 = ^uint64(0)
)

// CheckpointV1Struct flag bits.
//
const (
	CheckpointFlagInvalid  uint32 = 1 << 0
	CheckpointFlagSnapshot uint32 = 1 << 1
	CheckpointFlagMinor    uint32 = 1 << 2
)

// Sizes and intra-record offsets of the V1 records.  Checkpoint entries on
// disk occupy a configurable entry size recorded at volume format time; the
// entry size must be at least CheckpointV1Size and no larger than the volume
// block size.  Bytes beyond CheckpointV1Size in each slot are zero.
//
const (
	InodeV1Size uint64 = 128

	CheckpointV1Size               uint64 = 64 + InodeV1Size
	CheckpointV1FlagsOffset        uint64 = 0
	CheckpointV1CountOffset        uint64 = 4
	CheckpointV1SnapshotListOffset uint64 = 8

	CpfileHeaderV1Size               uint64 = 32
	CpfileHeaderV1SnapshotListOffset uint64 = 16

	SnapshotListV1Size uint64 = 16

	CheckpointSizeMin uint64 = CheckpointV1Size
)

// InodeModeRegularFile is the i_mode of a metadata file's on-disk inode.
//
const InodeModeRegularFile uint16 = 0o100600

// InodeV1Struct specifies the raw on-disk inode embedded in each checkpoint
// entry (the checkpoint's ifile root) and backing every metadata file.
//
// The struct is serialized as a sequence of LittleEndian formatted fields.
//
type InodeV1Struct struct {
	Blocks     uint64    // Number of blocks referenced by this inode
	Size       uint64    // Size of the file in bytes
	Ctime      uint64    // Creation time in seconds since the epoch
	Mtime      uint64    // Modification time in seconds since the epoch
	CtimeNsec  uint32    // Nanosecond part of Ctime
	MtimeNsec  uint32    // Nanosecond part of Mtime
	UID        uint32    // Owner's user ID
	GID        uint32    // Owner's group ID
	Mode       uint16    // File mode
	LinksCount uint16    // Number of links
	Flags      uint32    // File flags
	BlockRoot  [7]uint64 // Root of the block mapping
	Xattr      uint64    // Extended attribute block
	Generation uint32    // File generation (for NFS)
	Pad        uint32
}

func (inode *InodeV1Struct) MarshalInodeV1() (inodeV1Buf []byte, err error) {
	inodeV1Buf, err = inode.marshalInodeV1()
	return
}

func UnmarshalInodeV1(inodeV1Buf []byte) (inode *InodeV1Struct, err error) {
	inode, err = unmarshalInodeV1(inodeV1Buf)
	return
}

// SnapshotListV1Struct is the pair of checkpoint-number links threading a
// checkpoint entry onto the doubly-linked snapshot list.  The header entry
// carries one as the list sentinel.  A zero link means "header sentinel".
//
type SnapshotListV1Struct struct {
	Next uint64 // Cno of the next (larger) snapshot; 0 means the header
	Prev uint64 // Cno of the previous (smaller) snapshot; 0 means the header
}

func (ssl *SnapshotListV1Struct) MarshalSnapshotListV1() (sslV1Buf []byte, err error) {
	sslV1Buf, err = ssl.marshalSnapshotListV1()
	return
}

func UnmarshalSnapshotListV1(sslV1Buf []byte) (ssl *SnapshotListV1Struct, err error) {
	ssl, err = unmarshalSnapshotListV1(sslV1Buf)
	return
}

// CheckpointV1Struct specifies the format of one checkpoint entry.
//
// CheckpointsCount is meaningful only in the entry occupying the first slot
// of a block other than block 0, where it counts the valid (non-INVALID)
// entries in that block.
//
type CheckpointV1Struct struct {
	Flags            uint32               // CheckpointFlag* bits
	CheckpointsCount uint32               // Per-block census (first slot of blocks other than block 0 only)
	SnapshotList     SnapshotListV1Struct // Snapshot list links; zero unless SNAPSHOT is set
	Cno              uint64               // This entry's checkpoint number
	CreateTime       uint64               // Creation time in seconds since the epoch
	NblkInc          uint64               // Number of blocks added by this checkpoint
	InodesCount      uint64               // Number of inodes in this checkpoint
	BlocksCount      uint64               // Number of blocks in this checkpoint
	IfileInode       InodeV1Struct        // Raw inode of this checkpoint's ifile root
}

func (checkpoint *CheckpointV1Struct) MarshalCheckpointV1() (checkpointV1Buf []byte, err error) {
	checkpointV1Buf, err = checkpoint.marshalCheckpointV1()
	return
}

func UnmarshalCheckpointV1(checkpointV1Buf []byte) (checkpoint *CheckpointV1Struct, err error) {
	checkpoint, err = unmarshalCheckpointV1(checkpointV1Buf)
	return
}

func (checkpoint *CheckpointV1Struct) IsInvalid() bool {
	return (checkpoint.Flags & CheckpointFlagInvalid) != 0
}

func (checkpoint *CheckpointV1Struct) SetInvalid() {
	checkpoint.Flags |= CheckpointFlagInvalid
}

func (checkpoint *CheckpointV1Struct) ClearInvalid() {
	checkpoint.Flags &^= CheckpointFlagInvalid
}

func (checkpoint *CheckpointV1Struct) IsSnapshot() bool {
	return (checkpoint.Flags & CheckpointFlagSnapshot) != 0
}

func (checkpoint *CheckpointV1Struct) SetSnapshot() {
	checkpoint.Flags |= CheckpointFlagSnapshot
}

func (checkpoint *CheckpointV1Struct) ClearSnapshot() {
	checkpoint.Flags &^= CheckpointFlagSnapshot
}

func (checkpoint *CheckpointV1Struct) IsMinor() bool {
	return (checkpoint.Flags & CheckpointFlagMinor) != 0
}

func (checkpoint *CheckpointV1Struct) SetMinor() {
	checkpoint.Flags |= CheckpointFlagMinor
}

func (checkpoint *CheckpointV1Struct) ClearMinor() {
	checkpoint.Flags &^= CheckpointFlagMinor
}

// CpfileHeaderV1Struct specifies the format of the cpfile header occupying
// slot 0 of block 0.  Its SnapshotList is the sentinel of the snapshot list.
//
type CpfileHeaderV1Struct struct {
	Ncheckpoints uint64               // Count of valid checkpoint entries in the cpfile
	Nsnapshots   uint64               // Count of entries with SNAPSHOT set
	SnapshotList SnapshotListV1Struct // Snapshot list sentinel
}

func (header *CpfileHeaderV1Struct) MarshalCpfileHeaderV1() (headerV1Buf []byte, err error) {
	headerV1Buf, err = header.marshalCpfileHeaderV1()
	return
}

func UnmarshalCpfileHeaderV1(headerV1Buf []byte) (header *CpfileHeaderV1Struct, err error) {
	header, err = unmarshalCpfileHeaderV1(headerV1Buf)
	return
}

// In-place accessors for the fields that are patched inside a block buffer
// without rewriting the whole record.  The supplied buf must start at the
// record (checkpoint entry or header) being accessed.

// GetCheckpointFlagsV1 returns the flag bits of the entry starting at buf[0].
func GetCheckpointFlagsV1(buf []byte) (flags uint32, err error) {
	flags, err = getU32(buf, CheckpointV1FlagsOffset)
	return
}

// PutCheckpointFlagsV1 overwrites the flag bits of the entry starting at buf[0].
func PutCheckpointFlagsV1(buf []byte, flags uint32) (err error) {
	err = putU32(buf, CheckpointV1FlagsOffset, flags)
	return
}

// GetCheckpointsCountV1 returns the per-block census of the entry starting at buf[0].
func GetCheckpointsCountV1(buf []byte) (count uint32, err error) {
	count, err = getU32(buf, CheckpointV1CountOffset)
	return
}

// PutCheckpointsCountV1 overwrites the per-block census of the entry starting at buf[0].
func PutCheckpointsCountV1(buf []byte, count uint32) (err error) {
	err = putU32(buf, CheckpointV1CountOffset, count)
	return
}
