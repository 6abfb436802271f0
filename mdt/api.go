// Package mdt implements the metadata-file layer of a seqfs volume.
//
// A metadata file is a sparse, block-addressable file holding fixed-size
// records (the checkpoint file is one such file).  Blocks are allocated
// lazily on first write into their range, may be deleted once empty, and are
// tracked for dirtiness so the segment writer can persist them as a unit.
//
// Each metadata file carries a single reader/writer lock protecting all of
// its state; callers of the record-level packages (e.g. cpfile) take it
// around every operation.
//
package mdt

import (
	"github.com/seqfs/seqfs/blunder"
	"github.com/seqfs/seqfs/conf"
	"github.com/seqfs/seqfs/cplayout"
)

// BlockInitFunc is invoked on a freshly allocated block before GetBlock()
// returns it; buf is the block's backing memory.
type BlockInitFunc func(blkoff uint64, buf []byte)

// Block is one block of a metadata file.
//
// Map() borrows the block's backing memory; Unmap() returns it.  A mapping
// must be dropped before fetching another block from the same volume (a
// mapping held across a blocking fetch can deadlock the backing pool in
// low-memory conditions).
//
type Block interface {
	Blkoff() (blkoff uint64)
	Map() (buf []byte)
	Unmap()
	MarkDirty()
	IsDirty() (dirty bool)
}

// File is a block-addressable sparse metadata file.
//
// The Lock()/Unlock()/RLock()/RUnlock() methods expose the file's
// reader/writer lock.  Block-map accesses are internally serialized, so
// concurrent readers holding RLock() may fetch blocks safely.
//
type File interface {
	InodeNumber() (inodeNumber uint64)
	VolumeName() (volumeName string)
	BlockSize() (blockSize uint64)

	// SetEntrySize records the fixed record size of this file and the
	// number of bytes reserved for a header at the start of block 0.
	SetEntrySize(entrySize uint64, headerBytes uint64) (err error)
	EntrySize() (entrySize uint64)
	EntriesPerBlock() (entriesPerBlock uint64)
	FirstEntryOffset() (firstEntryOffset uint64)

	// GetBlock returns the block at blkoff.  If the block is a hole and
	// create is false, a blunder.NotFoundError-annotated error results.
	// If create is true the block is allocated, initialized via initFn,
	// and marked dirty.
	GetBlock(blkoff uint64, create bool, initFn BlockInitFunc) (blk Block, err error)

	// FindBlock returns the first existing block with
	// startBlkoff <= blkoff <= endBlkoff, or blunder.NotFoundError.
	FindBlock(startBlkoff uint64, endBlkoff uint64) (foundBlkoff uint64, blk Block, err error)

	// DeleteBlock removes the block at blkoff, leaving a hole.  Deleting
	// a hole is metadata corruption and fails with blunder.IOError.
	DeleteBlock(blkoff uint64) (err error)

	// MarkDirty records that the file's inode needs to be written out.
	MarkDirty()
	IsDirty() (dirty bool)

	// FlushDirty returns the offsets of all dirty blocks in ascending
	// order and clears the dirty state of the blocks and the file; it is
	// the hook the segment writer drives.
	FlushDirty() (dirtyBlkoffs []uint64)

	// InodeRecord returns the file's raw on-disk inode record.  The
	// record is protected by the file's lock.
	InodeRecord() (inodeRecord *cplayout.InodeV1Struct)

	// LoadInodeRecord deserializes rawInode as this file's inode record,
	// validating it first.
	LoadInodeRecord(rawInode *cplayout.InodeV1Struct) (err error)

	// InjectBlockFailure arms a one-shot failure for the next GetBlock()
	// or DeleteBlock() touching blkoff (test hook).
	InjectBlockFailure(blkoff uint64, fsErr blunder.FsError)

	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// Volume is a collection of metadata files sharing a block size and the
// volume-wide checkpoint-number counter.
//
type Volume interface {
	Name() (volumeName string)
	BlockSize() (blockSize uint64)
	IsReadOnly() (readOnly bool)
	SetReadOnly(readOnly bool)

	// Cno returns the next checkpoint number to be assigned; valid
	// checkpoint numbers are in [1, Cno()).
	Cno() (cno uint64)

	// ReserveCno assigns and returns the next checkpoint number; it is
	// called by the segment-writer path when a new checkpoint is opened.
	ReserveCno() (cno uint64)

	// FetchFile returns the metadata file with the given well-known inode
	// number, materializing an empty one on first reference.  Repeated
	// calls return the same handle.
	FetchFile(inodeNumber uint64) (file File, err error)
}

// Up starts up the package per confMap, creating the volumes listed in
// FSGlobals.VolumeList.  For each volume, section Volume:<name> supplies:
//
//   BlockSize            block size in bytes (required)
//   ReadOnly             mount read-only (optional; default false)
//
func Up(confMap conf.ConfMap) (err error) {
	return up(confMap)
}

// Down shuts down the package, discarding all volumes.
func Down() (err error) {
	return down()
}

// FetchVolumeHandle returns the Volume registered under volumeName.
func FetchVolumeHandle(volumeName string) (volume Volume, err error) {
	return fetchVolumeHandle(volumeName)
}
