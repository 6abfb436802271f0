package cplayout

import (
	"encoding/binary"
	"fmt"

	"github.com/NVIDIA/cstruct"
)

func (inode *InodeV1Struct) marshalInodeV1() (inodeV1Buf []byte, err error) {
	inodeV1Buf, err = cstruct.Pack(inode, LittleEndian)
	if nil != err {
		return
	}
	if uint64(len(inodeV1Buf)) != InodeV1Size {
		err = fmt.Errorf("marshaled inode occupies %v bytes (expected %v)", len(inodeV1Buf), InodeV1Size)
		return
	}

	return
}

func unmarshalInodeV1(inodeV1Buf []byte) (inode *InodeV1Struct, err error) {
	inode = &InodeV1Struct{}

	_, err = cstruct.Unpack(inodeV1Buf, inode, LittleEndian)
	if nil != err {
		inode = nil
		return
	}

	return
}

func (ssl *SnapshotListV1Struct) marshalSnapshotListV1() (sslV1Buf []byte, err error) {
	sslV1Buf, err = cstruct.Pack(ssl, LittleEndian)
	return
}

func unmarshalSnapshotListV1(sslV1Buf []byte) (ssl *SnapshotListV1Struct, err error) {
	ssl = &SnapshotListV1Struct{}

	_, err = cstruct.Unpack(sslV1Buf, ssl, LittleEndian)
	if nil != err {
		ssl = nil
		return
	}

	return
}

func (checkpoint *CheckpointV1Struct) marshalCheckpointV1() (checkpointV1Buf []byte, err error) {
	checkpointV1Buf, err = cstruct.Pack(checkpoint, LittleEndian)
	if nil != err {
		return
	}
	if uint64(len(checkpointV1Buf)) != CheckpointV1Size {
		err = fmt.Errorf("marshaled checkpoint entry occupies %v bytes (expected %v)", len(checkpointV1Buf), CheckpointV1Size)
		return
	}

	return
}

func unmarshalCheckpointV1(checkpointV1Buf []byte) (checkpoint *CheckpointV1Struct, err error) {
	checkpoint = &CheckpointV1Struct{}

	_, err = cstruct.Unpack(checkpointV1Buf, checkpoint, LittleEndian)
	if nil != err {
		checkpoint = nil
		return
	}

	return
}

func (header *CpfileHeaderV1Struct) marshalCpfileHeaderV1() (headerV1Buf []byte, err error) {
	headerV1Buf, err = cstruct.Pack(header, LittleEndian)
	if nil != err {
		return
	}
	if uint64(len(headerV1Buf)) != CpfileHeaderV1Size {
		err = fmt.Errorf("marshaled cpfile header occupies %v bytes (expected %v)", len(headerV1Buf), CpfileHeaderV1Size)
		return
	}

	return
}

func unmarshalCpfileHeaderV1(headerV1Buf []byte) (header *CpfileHeaderV1Struct, err error) {
	header = &CpfileHeaderV1Struct{}

	_, err = cstruct.Unpack(headerV1Buf, header, LittleEndian)
	if nil != err {
		header = nil
		return
	}

	return
}

func getU32(buf []byte, offset uint64) (value uint32, err error) {
	if uint64(len(buf)) < (offset + 4) {
		err = fmt.Errorf("insufficient space in buf (%v bytes) for uint32 at offset %v", len(buf), offset)
		return
	}

	value = binary.LittleEndian.Uint32(buf[offset : offset+4])

	err = nil
	return
}

func putU32(buf []byte, offset uint64, value uint32) (err error) {
	if uint64(len(buf)) < (offset + 4) {
		err = fmt.Errorf("insufficient space in buf (%v bytes) for uint32 at offset %v", len(buf), offset)
		return
	}

	binary.LittleEndian.PutUint32(buf[offset:offset+4], value)

	err = nil
	return
}
