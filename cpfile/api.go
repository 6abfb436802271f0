// Package cpfile implements the checkpoint file of a seqfs volume.
//
// The checkpoint file (cpfile) is a sparse metadata table recording every
// checkpoint ever created on the volume, keyed by checkpoint number (cno).
// Checkpoints promoted to snapshots are additionally threaded onto an on-disk
// doubly-linked list, kept in ascending cno order, whose sentinel lives in
// the cpfile header.  The header also maintains the aggregate checkpoint and
// snapshot counts.
//
// All operations take the backing metadata file's reader/writer lock;
// lookups, enumeration and stat take it shared while mutations take it
// exclusive.
//
package cpfile

import (
	"sync/atomic"

	"github.com/seqfs/seqfs/cplayout"
	"github.com/seqfs/seqfs/mdt"
)

// CpMode selects between plain checkpoints and snapshots in ChangeCpmode()
// and GetCpinfo().
//
type CpMode int

const (
	CheckpointMode CpMode = iota
	SnapshotMode
)

// CpInfo is the summary of one checkpoint entry returned by GetCpinfo().
//
type CpInfo struct {
	Flags       uint32 // cplayout.CheckpointFlag* bits
	Cno         uint64
	CreateTime  uint64
	NblkInc     uint64
	InodesCount uint64
	BlocksCount uint64
	Next        uint64 // next snapshot's cno (snapshot entries only; 0 otherwise)
}

func (cpInfo *CpInfo) IsSnapshot() bool {
	return (cpInfo.Flags & cplayout.CheckpointFlagSnapshot) != 0
}

func (cpInfo *CpInfo) IsMinor() bool {
	return (cpInfo.Flags & cplayout.CheckpointFlagMinor) != 0
}

// CpStat is the answer to GetStat().
//
type CpStat struct {
	Cno  uint64 // next checkpoint number to be assigned
	Ncps uint64 // number of valid checkpoints
	Nsss uint64 // number of snapshots
}

// Root is the in-memory root object of a mounted checkpoint.  Its counters
// are read by other paths without taking the cpfile lock, so they are
// published with 64-bit atomic stores.
//
type Root struct {
	inodesCount uint64 // accessed atomically
	blocksCount uint64 // accessed atomically
	Ifile       mdt.File
}

func (root *Root) InodesCount() (inodesCount uint64) {
	inodesCount = atomic.LoadUint64(&root.inodesCount)
	return
}

func (root *Root) SetInodesCount(inodesCount uint64) {
	atomic.StoreUint64(&root.inodesCount, inodesCount)
}

func (root *Root) BlocksCount() (blocksCount uint64) {
	blocksCount = atomic.LoadUint64(&root.blocksCount)
	return
}

func (root *Root) SetBlocksCount(blocksCount uint64) {
	atomic.StoreUint64(&root.blocksCount, blocksCount)
}

// MountedPredicate reports whether the checkpoint with the given cno is
// currently mounted; it is supplied by the mount layer.
//
type MountedPredicate func(cno uint64) (mounted bool)

// Cpfile is the handle to a volume's checkpoint file.
//
type Cpfile interface {

	// CreateCheckpoint sets up the entry for cno, lazily allocating its
	// block.  If the entry already exists due to a past failure it is
	// reused without returning an error.  In either case the block and
	// the cpfile inode are marked dirty for inclusion in the write log.
	CreateCheckpoint(cno uint64) (err error)

	// FinalizeCheckpoint completes the entry numbered cno with the data
	// given by root, blkinc, ctime and minor.  A missing or invalid
	// entry means the cpfile is corrupt (the create step must have
	// established it) and fails with EIO.
	FinalizeCheckpoint(cno uint64, root *Root, blkinc uint64, ctime uint64, minor bool) (err error)

	// ReadCheckpoint imports the checkpoint numbered cno: the embedded
	// ifile root inode is deserialized into ifile, and the inode/block
	// counts are published into root, to which ifile is attached.
	ReadCheckpoint(cno uint64, root *Root, ifile mdt.File) (err error)

	// DeleteCheckpoints deletes the checkpoints in the half-open range
	// [start, end).  Already-deleted checkpoints and hole blocks are
	// ignored.  Snapshots in the range are left in place; if any were
	// encountered the call returns EBUSY after all other deletions have
	// been applied.
	DeleteCheckpoints(start uint64, end uint64) (err error)

	// DeleteCheckpoint deletes the single checkpoint numbered cno,
	// failing with ENOENT if it does not exist and EBUSY if it is a
	// snapshot.
	DeleteCheckpoint(cno uint64) (err error)

	// GetCpinfo fills ci with summaries of checkpoints starting at *cnop
	// and returns the count filled.  In CheckpointMode all valid entries
	// are enumerated in cno order, skipping holes; on success with at
	// least one entry, *cnop is advanced past the last entry returned.
	// In SnapshotMode the snapshot list is walked from *cnop (0 means
	// the head of the list); *cnop is left at the next snapshot to visit
	// or at cplayout.CnoTerminator at the end of the list.
	GetCpinfo(cnop *uint64, mode CpMode, ci []CpInfo) (n int, err error)

	// ChangeCpmode switches the checkpoint numbered cno between plain
	// checkpoint and snapshot mode, maintaining the snapshot list and
	// counts.  Requesting the mode already in effect succeeds.  A
	// mounted checkpoint cannot revert to plain mode (EBUSY).
	ChangeCpmode(cno uint64, mode CpMode) (err error)

	// IsSnapshot reports whether the checkpoint numbered cno is a
	// snapshot; ENOENT if there is no such checkpoint.
	IsSnapshot(cno uint64) (isSnapshot bool, err error)

	// GetStat returns the next checkpoint number and the aggregate
	// checkpoint/snapshot counts.
	GetStat() (cpStat CpStat, err error)

	// SetMountedPredicate installs the mount layer's view of which
	// checkpoints are mounted.  Without one, no checkpoint is considered
	// mounted.
	SetMountedPredicate(mounted MountedPredicate)
}

// Format initializes the checkpoint file of a freshly created volume: block
// 0 is allocated with a zeroed header and all checkpoint slots invalid.  A
// volume whose cpfile already exists fails with EEXIST.
//
func Format(volume mdt.Volume, cpsize uint64) (err error) {
	return format(volume, cpsize)
}

// Read binds and returns the Cpfile handle of volume, validating the
// checkpoint entry size recorded at format time and deserializing the
// cpfile's raw inode.  Repeated calls return the same handle.
//
func Read(volume mdt.Volume, cpsize uint64, rawInode *cplayout.InodeV1Struct) (cpfile Cpfile, err error) {
	return read(volume, cpsize, rawInode)
}

// Down releases all Cpfile handles (e.g. at unmount or test teardown).
//
func Down() (err error) {
	return downAll()
}
