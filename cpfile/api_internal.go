package cpfile

import (
	"time"

	"github.com/seqfs/seqfs/blunder"
	"github.com/seqfs/seqfs/bucketstats"
	"github.com/seqfs/seqfs/cplayout"
	"github.com/seqfs/seqfs/logger"
	"github.com/seqfs/seqfs/mdt"
	"github.com/seqfs/seqfs/trackedlock"
	"github.com/seqfs/seqfs/utils"
)

type statsStruct struct {
	CreateCheckpointOps   bucketstats.Total
	FinalizeCheckpointOps bucketstats.Total
	ReadCheckpointOps     bucketstats.Total
	DeleteCheckpointsOps  bucketstats.Total
	GetCpinfoOps          bucketstats.Total
	ChangeCpmodeOps       bucketstats.Total
	IsSnapshotOps         bucketstats.Total
	GetStatOps            bucketstats.Total

	CreateCheckpointUsec  bucketstats.Average
	DeleteCheckpointsUsec bucketstats.Average
	ChangeCpmodeUsec      bucketstats.Average
}

// Corruption diagnostics are rate limited so a scrubber hammering a damaged
// volume cannot flood the log.
const (
	corruptionLogWindow = time.Minute
	corruptionLogBudget = 10
)

type cpfileStruct struct {
	volume mdt.Volume
	file   mdt.File
	cpsize uint64

	mountedMutex trackedlock.Mutex
	mounted      MountedPredicate

	corruptionMutex       trackedlock.Mutex
	corruptionWindowStart time.Time
	corruptionLogged      uint64
	corruptionSuppressed  uint64

	stats statsStruct
}

// logCorruption emits a rate-limited metadata-corruption diagnostic naming
// the volume.
//
func (cpfile *cpfileStruct) logCorruption(format string, args ...interface{}) {
	var (
		emit       bool
		now        time.Time
		suppressed uint64
	)

	now = time.Now()

	cpfile.corruptionMutex.Lock()
	if now.Sub(cpfile.corruptionWindowStart) >= corruptionLogWindow {
		suppressed = cpfile.corruptionSuppressed
		cpfile.corruptionWindowStart = now
		cpfile.corruptionLogged = 0
		cpfile.corruptionSuppressed = 0
	}
	if cpfile.corruptionLogged < corruptionLogBudget {
		cpfile.corruptionLogged++
		emit = true
	} else {
		cpfile.corruptionSuppressed++
	}
	cpfile.corruptionMutex.Unlock()

	if suppressed > 0 {
		logger.Warnf("cpfile [%s]: %v corruption diagnostics suppressed", cpfile.volume.Name(), suppressed)
	}
	if emit {
		logger.Errorf("cpfile [%s]: "+format, append([]interface{}{cpfile.volume.Name()}, args...)...)
	}
}

//
// Block-layout calculator
//
// Slot 0 of block 0 holds the header, so checkpoint number cno lives at
// block (cno + F - 1) / E, slot (cno + F - 1) % E, where E is the entry
// count per block and F is the first-entry offset accounting for the header.
//

func (cpfile *cpfileStruct) checkpointsPerBlock() (checkpointsPerBlock uint64) {
	checkpointsPerBlock = cpfile.file.EntriesPerBlock()
	return
}

func (cpfile *cpfileStruct) getBlkoff(cno uint64) (blkoff uint64) {
	blkoff = (cno + cpfile.file.FirstEntryOffset() - 1) / cpfile.checkpointsPerBlock()
	return
}

func (cpfile *cpfileStruct) getSlot(cno uint64) (slot uint64) {
	slot = (cno + cpfile.file.FirstEntryOffset() - 1) % cpfile.checkpointsPerBlock()
	return
}

func (cpfile *cpfileStruct) firstCheckpointInBlock(blkoff uint64) (cno uint64) {
	cno = cpfile.checkpointsPerBlock()*blkoff + 1 - cpfile.file.FirstEntryOffset()
	return
}

// checkpointsInBlock returns how many slots the range [curr, max) occupies
// in curr's block.
func (cpfile *cpfileStruct) checkpointsInBlock(curr uint64, max uint64) (ncps uint64) {
	ncps = cpfile.checkpointsPerBlock() - cpfile.getSlot(curr)
	if (max - curr) < ncps {
		ncps = max - curr
	}
	return
}

// isInFirstBlock reports whether cno lives in block 0.  Block 0's first slot
// is the header, so block 0 carries no per-block census and is never
// reclaimed; every census update must be gated on this check.
func (cpfile *cpfileStruct) isInFirstBlock(cno uint64) (inFirst bool) {
	inFirst = (0 == cpfile.getBlkoff(cno))
	return
}

func (cpfile *cpfileStruct) checkpointOffset(cno uint64) (offset uint64) {
	offset = cpfile.getSlot(cno) * cpfile.cpsize
	return
}

func (cpfile *cpfileStruct) snapshotListOffset(cno uint64) (offset uint64) {
	offset = cpfile.checkpointOffset(cno) + cplayout.CheckpointV1SnapshotListOffset
	return
}

//
// Block accessor
//

// blockInit marks every slot of a freshly allocated block invalid.
func (cpfile *cpfileStruct) blockInit(blkoff uint64, buf []byte) {
	var (
		slot uint64
	)

	for slot = 0; slot < cpfile.checkpointsPerBlock(); slot++ {
		_ = cplayout.PutCheckpointFlagsV1(buf[slot*cpfile.cpsize:], cplayout.CheckpointFlagInvalid)
	}
}

func (cpfile *cpfileStruct) getHeaderBlock() (headerBlk mdt.Block, err error) {
	headerBlk, err = cpfile.file.GetBlock(0, false, nil)
	if nil != err {
		if blunder.Is(err, blunder.NotFoundError) {
			cpfile.logCorruption("missing header block in checkpoint metadata")
			err = blunder.NewError(blunder.IOError, "missing header block in checkpoint metadata")
		}
	}
	return
}

func (cpfile *cpfileStruct) getCheckpointBlock(cno uint64, create bool) (cpBlk mdt.Block, err error) {
	cpBlk, err = cpfile.file.GetBlock(cpfile.getBlkoff(cno), create, cpfile.blockInit)
	return
}

// findCheckpointBlock locates the first existing block holding a checkpoint
// in [startCno, endCno] and reports the first checkpoint number the caller
// should consider in it.
func (cpfile *cpfileStruct) findCheckpointBlock(startCno uint64, endCno uint64) (nextCno uint64, cpBlk mdt.Block, err error) {
	var (
		foundBlkoff uint64
	)

	if startCno > endCno {
		err = blunder.NewError(blunder.NotFoundError, "empty checkpoint range [%v, %v]", startCno, endCno)
		return
	}

	foundBlkoff, cpBlk, err = cpfile.file.FindBlock(cpfile.getBlkoff(startCno), cpfile.getBlkoff(endCno))
	if nil != err {
		return
	}

	if foundBlkoff == cpfile.getBlkoff(startCno) {
		nextCno = startCno
	} else {
		nextCno = cpfile.firstCheckpointInBlock(foundBlkoff)
	}
	return
}

func (cpfile *cpfileStruct) deleteCheckpointBlock(cno uint64) (err error) {
	err = cpfile.file.DeleteBlock(cpfile.getBlkoff(cno))
	return
}

//
// Entry and header codecs over a block's mapped memory
//

func (cpfile *cpfileStruct) readEntry(cpBlk mdt.Block, cno uint64) (checkpoint *cplayout.CheckpointV1Struct, err error) {
	var (
		buf    []byte
		offset uint64
	)

	buf = cpBlk.Map()
	offset = cpfile.checkpointOffset(cno)
	checkpoint, err = cplayout.UnmarshalCheckpointV1(buf[offset : offset+cplayout.CheckpointV1Size])
	cpBlk.Unmap()

	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
	}
	return
}

func (cpfile *cpfileStruct) writeEntry(cpBlk mdt.Block, cno uint64, checkpoint *cplayout.CheckpointV1Struct) (err error) {
	var (
		buf           []byte
		checkpointBuf []byte
		offset        uint64
	)

	checkpointBuf, err = checkpoint.MarshalCheckpointV1()
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	buf = cpBlk.Map()
	offset = cpfile.checkpointOffset(cno)
	copy(buf[offset:offset+cplayout.CheckpointV1Size], checkpointBuf)
	cpBlk.Unmap()

	return
}

func (cpfile *cpfileStruct) readHeader(headerBlk mdt.Block) (header *cplayout.CpfileHeaderV1Struct, err error) {
	var (
		buf []byte
	)

	buf = headerBlk.Map()
	header, err = cplayout.UnmarshalCpfileHeaderV1(buf[:cplayout.CpfileHeaderV1Size])
	headerBlk.Unmap()

	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
	}
	return
}

func (cpfile *cpfileStruct) writeHeader(headerBlk mdt.Block, header *cplayout.CpfileHeaderV1Struct) (err error) {
	var (
		buf       []byte
		headerBuf []byte
	)

	headerBuf, err = header.MarshalCpfileHeaderV1()
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	buf = headerBlk.Map()
	copy(buf[:cplayout.CpfileHeaderV1Size], headerBuf)
	headerBlk.Unmap()

	return
}

// getSnapshotListAt reads the snapshot-list links found at the given byte
// offset of blk (either an entry's links or the header sentinel).
func (cpfile *cpfileStruct) getSnapshotListAt(blk mdt.Block, offset uint64) (ssl *cplayout.SnapshotListV1Struct, err error) {
	var (
		buf []byte
	)

	buf = blk.Map()
	ssl, err = cplayout.UnmarshalSnapshotListV1(buf[offset : offset+cplayout.SnapshotListV1Size])
	blk.Unmap()

	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
	}
	return
}

func (cpfile *cpfileStruct) putSnapshotListAt(blk mdt.Block, offset uint64, ssl *cplayout.SnapshotListV1Struct) (err error) {
	var (
		buf    []byte
		sslBuf []byte
	)

	sslBuf, err = ssl.MarshalSnapshotListV1()
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	buf = blk.Map()
	copy(buf[offset:offset+cplayout.SnapshotListV1Size], sslBuf)
	blk.Unmap()

	return
}

//
// Per-block census
//

func (cpfile *cpfileStruct) blockAddValidCheckpoints(cpBlk mdt.Block, n uint32) (count uint32) {
	var (
		buf []byte
	)

	buf = cpBlk.Map()
	count, _ = cplayout.GetCheckpointsCountV1(buf)
	count += n
	_ = cplayout.PutCheckpointsCountV1(buf, count)
	cpBlk.Unmap()
	return
}

func (cpfile *cpfileStruct) blockSubValidCheckpoints(cpBlk mdt.Block, n uint32) (count uint32) {
	var (
		buf []byte
	)

	buf = cpBlk.Map()
	count, _ = cplayout.GetCheckpointsCountV1(buf)
	if count < n {
		logger.Warnf("cpfile [%s]: block census underflow at blkoff %v (%v - %v)",
			cpfile.volume.Name(), cpBlk.Blkoff(), count, n)
		count = 0
	} else {
		count -= n
	}
	_ = cplayout.PutCheckpointsCountV1(buf, count)
	cpBlk.Unmap()
	return
}

// requireWritable gates every mutating operation on the volume's mount mode.
func (cpfile *cpfileStruct) requireWritable() (err error) {
	if cpfile.volume.IsReadOnly() {
		err = blunder.NewError(blunder.ReadOnlyError,
			"volume '%s' is mounted read-only", cpfile.volume.Name())
		return
	}
	err = nil
	return
}

//
// Operations
//

func (cpfile *cpfileStruct) CreateCheckpoint(cno uint64) (err error) {
	var (
		checkpoint *cplayout.CheckpointV1Struct
		cpBlk      mdt.Block
		header     *cplayout.CpfileHeaderV1Struct
		headerBlk  mdt.Block
		stopwatch  *utils.Stopwatch
	)

	cpfile.stats.CreateCheckpointOps.Increment()
	stopwatch = utils.NewStopwatch()
	defer func() {
		cpfile.stats.CreateCheckpointUsec.Add(uint64(stopwatch.Stop() / time.Microsecond))
	}()

	if cno < 1 {
		logger.Warnf("cpfile [%s]: CreateCheckpoint() called with reserved cno 0", cpfile.volume.Name())
		err = blunder.NewError(blunder.IOError, "checkpoint number 0 is reserved")
		return
	}

	err = cpfile.requireWritable()
	if nil != err {
		return
	}

	cpfile.file.Lock()
	defer cpfile.file.Unlock()

	headerBlk, err = cpfile.getHeaderBlock()
	if nil != err {
		return
	}

	cpBlk, err = cpfile.getCheckpointBlock(cno, true)
	if nil != err {
		return
	}

	checkpoint, err = cpfile.readEntry(cpBlk, cno)
	if nil != err {
		return
	}

	if checkpoint.IsInvalid() {
		// a newly-created checkpoint
		checkpoint.ClearInvalid()
		err = cpfile.writeEntry(cpBlk, cno, checkpoint)
		if nil != err {
			return
		}

		if !cpfile.isInFirstBlock(cno) {
			_ = cpfile.blockAddValidCheckpoints(cpBlk, 1)
		}

		header, err = cpfile.readHeader(headerBlk)
		if nil != err {
			return
		}
		header.Ncheckpoints++
		err = cpfile.writeHeader(headerBlk, header)
		if nil != err {
			return
		}
		headerBlk.MarkDirty()
	}

	// Force the buffer and the inode to become dirty
	cpBlk.MarkDirty()
	cpfile.file.MarkDirty()

	err = nil
	return
}

func (cpfile *cpfileStruct) FinalizeCheckpoint(cno uint64, root *Root, blkinc uint64, ctime uint64, minor bool) (err error) {
	var (
		checkpoint *cplayout.CheckpointV1Struct
		cpBlk      mdt.Block
	)

	cpfile.stats.FinalizeCheckpointOps.Increment()

	if cno < 1 {
		logger.Warnf("cpfile [%s]: FinalizeCheckpoint() called with reserved cno 0", cpfile.volume.Name())
		err = blunder.NewError(blunder.IOError, "checkpoint number 0 is reserved")
		return
	}

	if (nil == root) || (nil == root.Ifile) {
		err = blunder.NewError(blunder.InvalidArgError, "root object with an attached ifile is required")
		return
	}

	err = cpfile.requireWritable()
	if nil != err {
		return
	}

	cpfile.file.Lock()
	defer cpfile.file.Unlock()

	cpBlk, err = cpfile.getCheckpointBlock(cno, false)
	if nil != err {
		if blunder.Is(err, blunder.NotFoundError) {
			// the create step established the block; absence is corruption
			cpfile.logCorruption("checkpoint finalization failed due to metadata corruption (cno=%v)", cno)
			err = blunder.NewError(blunder.IOError,
				"checkpoint finalization failed due to metadata corruption (cno=%v)", cno)
		}
		return
	}

	checkpoint, err = cpfile.readEntry(cpBlk, cno)
	if nil != err {
		return
	}
	if checkpoint.IsInvalid() {
		cpfile.logCorruption("checkpoint finalization failed due to metadata corruption (cno=%v)", cno)
		err = blunder.NewError(blunder.IOError,
			"checkpoint finalization failed due to metadata corruption (cno=%v)", cno)
		return
	}

	checkpoint.SnapshotList.Next = 0
	checkpoint.SnapshotList.Prev = 0
	checkpoint.InodesCount = root.InodesCount()
	checkpoint.BlocksCount = root.BlocksCount()
	checkpoint.NblkInc = blkinc
	checkpoint.CreateTime = ctime
	checkpoint.Cno = cno

	if minor {
		checkpoint.SetMinor()
	} else {
		checkpoint.ClearMinor()
	}

	// serialize the ifile root inode into the entry
	checkpoint.IfileInode = *root.Ifile.InodeRecord()

	err = cpfile.writeEntry(cpBlk, cno, checkpoint)
	if nil != err {
		return
	}

	cpBlk.MarkDirty()
	cpfile.file.MarkDirty()

	err = nil
	return
}

func (cpfile *cpfileStruct) ReadCheckpoint(cno uint64, root *Root, ifile mdt.File) (err error) {
	var (
		checkpoint *cplayout.CheckpointV1Struct
		cpBlk      mdt.Block
	)

	cpfile.stats.ReadCheckpointOps.Increment()

	if (cno < 1) || (cno >= cpfile.volume.Cno()) {
		err = blunder.NewError(blunder.InvalidArgError, "checkpoint number %v out of range", cno)
		return
	}

	cpfile.file.RLock()
	defer cpfile.file.RUnlock()

	cpBlk, err = cpfile.getCheckpointBlock(cno, false)
	if nil != err {
		if blunder.Is(err, blunder.NotFoundError) {
			err = blunder.NewError(blunder.InvalidArgError, "no checkpoint numbered %v", cno)
		}
		return
	}

	checkpoint, err = cpfile.readEntry(cpBlk, cno)
	if nil != err {
		return
	}
	if checkpoint.IsInvalid() {
		err = blunder.NewError(blunder.InvalidArgError, "no checkpoint numbered %v", cno)
		return
	}

	err = ifile.LoadInodeRecord(&checkpoint.IfileInode)
	if nil != err {
		// this inode came from a valid checkpoint entry, so treat
		// errors as metadata corruption
		cpfile.logCorruption("ifile inode (checkpoint number=%v) corrupted", cno)
		err = blunder.NewError(blunder.IOError, "ifile inode (checkpoint number=%v) corrupted", cno)
		return
	}

	// publish the counts; readers of root do not take the cpfile lock
	root.SetInodesCount(checkpoint.InodesCount)
	root.SetBlocksCount(checkpoint.BlocksCount)
	root.Ifile = ifile

	err = nil
	return
}

func (cpfile *cpfileStruct) DeleteCheckpoints(start uint64, end uint64) (err error) {
	var (
		buf        []byte
		cno        uint64
		count      uint32
		cpBlk      mdt.Block
		flags      uint32
		headerBlk  mdt.Block
		i          uint64
		ncps       uint64
		nicps      uint32
		nss        uint64
		offset     uint64
		stopwatch  *utils.Stopwatch
		tnicps     uint64
	)

	cpfile.stats.DeleteCheckpointsOps.Increment()
	stopwatch = utils.NewStopwatch()
	defer func() {
		cpfile.stats.DeleteCheckpointsUsec.Add(uint64(stopwatch.Stop() / time.Microsecond))
	}()

	if (0 == start) || (start > end) {
		logger.Errorf("cpfile [%s]: cannot delete checkpoints: invalid range [%v, %v)",
			cpfile.volume.Name(), start, end)
		err = blunder.NewError(blunder.InvalidArgError, "invalid checkpoint range [%v, %v)", start, end)
		return
	}

	err = cpfile.requireWritable()
	if nil != err {
		return
	}

	cpfile.file.Lock()
	defer cpfile.file.Unlock()

	headerBlk, err = cpfile.getHeaderBlock()
	if nil != err {
		return
	}

	tnicps = 0
	nss = 0

	for cno = start; cno < end; cno += ncps {
		ncps = cpfile.checkpointsInBlock(cno, end)

		cpBlk, err = cpfile.getCheckpointBlock(cno, false)
		if nil != err {
			if !blunder.Is(err, blunder.NotFoundError) {
				break
			}
			// skip hole
			err = nil
			continue
		}

		nicps = 0
		buf = cpBlk.Map()
		offset = cpfile.checkpointOffset(cno)
		for i = 0; i < ncps; i++ {
			flags, _ = cplayout.GetCheckpointFlagsV1(buf[offset+i*cpfile.cpsize:])
			if 0 != (flags & cplayout.CheckpointFlagSnapshot) {
				nss++
			} else if 0 == (flags & cplayout.CheckpointFlagInvalid) {
				_ = cplayout.PutCheckpointFlagsV1(buf[offset+i*cpfile.cpsize:], flags|cplayout.CheckpointFlagInvalid)
				nicps++
			}
		}
		cpBlk.Unmap()

		if 0 == nicps {
			continue
		}

		tnicps += uint64(nicps)
		cpBlk.MarkDirty()
		cpfile.file.MarkDirty()

		if cpfile.isInFirstBlock(cno) {
			continue
		}

		count = cpfile.blockSubValidCheckpoints(cpBlk, nicps)
		if 0 != count {
			continue
		}

		// Delete the block if there are no more valid checkpoints
		err = cpfile.deleteCheckpointBlock(cno)
		if nil != err {
			logger.ErrorfWithError(err, "cpfile [%s]: error deleting checkpoint block at blkoff %v",
				cpfile.volume.Name(), cpfile.getBlkoff(cno))
			break
		}
	}

	if tnicps > 0 {
		header, errHeader := cpfile.readHeader(headerBlk)
		if nil == errHeader {
			header.Ncheckpoints -= tnicps
			errHeader = cpfile.writeHeader(headerBlk, header)
		}
		if nil != errHeader {
			if nil == err {
				err = errHeader
			}
		} else {
			headerBlk.MarkDirty()
			cpfile.file.MarkDirty()
		}
	}

	if (nil == err) && (nss > 0) {
		err = blunder.NewError(blunder.DevBusyError,
			"%v snapshots in range [%v, %v) were not deleted", nss, start, end)
	}

	return
}

func (cpfile *cpfileStruct) DeleteCheckpoint(cno uint64) (err error) {
	var (
		ci   [1]CpInfo
		n    int
		tcno uint64
	)

	tcno = cno
	n, err = cpfile.doGetCpinfoCheckpointMode(&tcno, ci[:])
	if nil != err {
		return
	}
	if (0 == n) || (ci[0].Cno != cno) {
		err = blunder.NewError(blunder.NotFoundError, "no checkpoint numbered %v", cno)
		return
	}
	if ci[0].IsSnapshot() {
		err = blunder.NewError(blunder.DevBusyError, "checkpoint %v is a snapshot", cno)
		return
	}

	err = cpfile.DeleteCheckpoints(cno, cno+1)
	return
}

func checkpointToCpInfo(checkpoint *cplayout.CheckpointV1Struct, cpInfo *CpInfo) {
	cpInfo.Flags = checkpoint.Flags
	cpInfo.Cno = checkpoint.Cno
	cpInfo.CreateTime = checkpoint.CreateTime
	cpInfo.NblkInc = checkpoint.NblkInc
	cpInfo.InodesCount = checkpoint.InodesCount
	cpInfo.BlocksCount = checkpoint.BlocksCount
	cpInfo.Next = checkpoint.SnapshotList.Next
}

func (cpfile *cpfileStruct) doGetCpinfoCheckpointMode(cnop *uint64, ci []CpInfo) (n int, err error) {
	var (
		buf        []byte
		checkpoint *cplayout.CheckpointV1Struct
		cno        uint64
		cpBlk      mdt.Block
		curCno     uint64
		i          uint64
		ncps       uint64
		offset     uint64
	)

	cno = *cnop
	if 0 == cno {
		// checkpoint number 0 is invalid
		err = blunder.NewError(blunder.NotFoundError, "checkpoint number 0 is reserved")
		return
	}

	cpfile.file.RLock()
	defer cpfile.file.RUnlock()

	curCno = cpfile.volume.Cno()

	for n < len(ci) {
		cno, cpBlk, err = cpfile.findCheckpointBlock(cno, curCno-1)
		if nil != err {
			if blunder.Is(err, blunder.NotFoundError) {
				err = nil
				break
			}
			return
		}

		ncps = cpfile.checkpointsInBlock(cno, curCno)

		buf = cpBlk.Map()
		offset = cpfile.checkpointOffset(cno)
		for i = 0; (i < ncps) && (n < len(ci)); i++ {
			checkpoint, err = cplayout.UnmarshalCheckpointV1(
				buf[offset+i*cpfile.cpsize : offset+i*cpfile.cpsize+cplayout.CheckpointV1Size])
			if nil != err {
				cpBlk.Unmap()
				err = blunder.AddError(err, blunder.IOError)
				return
			}
			if !checkpoint.IsInvalid() {
				checkpointToCpInfo(checkpoint, &ci[n])
				n++
			}
		}
		cpBlk.Unmap()

		cno += ncps
	}

	if n > 0 {
		*cnop = ci[n-1].Cno + 1
	}

	err = nil
	return
}

func (cpfile *cpfileStruct) doGetCpinfoSnapshotMode(cnop *uint64, ci []CpInfo) (n int, err error) {
	var (
		checkpoint *cplayout.CheckpointV1Struct
		cpBlk      mdt.Block
		curr       uint64
		currBlkoff uint64
		header     *cplayout.CpfileHeaderV1Struct
		headerBlk  mdt.Block
		next       uint64
		nextBlkoff uint64
	)

	curr = *cnop

	cpfile.file.RLock()
	defer cpfile.file.RUnlock()

	if 0 == curr {
		// start from the head of the snapshot list
		headerBlk, err = cpfile.getHeaderBlock()
		if nil != err {
			return
		}
		header, err = cpfile.readHeader(headerBlk)
		if nil != err {
			return
		}
		curr = header.SnapshotList.Next
		if 0 == curr {
			// no snapshots
			err = nil
			return
		}
	} else if cplayout.CnoTerminator == curr {
		err = nil
		return
	}

	currBlkoff = cpfile.getBlkoff(curr)
	cpBlk, err = cpfile.getCheckpointBlock(curr, false)
	if nil != err {
		if blunder.Is(err, blunder.NotFoundError) {
			// No snapshots (started from a hole block)
			err = nil
		}
		return
	}

	for n < len(ci) {
		checkpoint, err = cpfile.readEntry(cpBlk, curr)
		if nil != err {
			return
		}

		if checkpoint.IsInvalid() || !checkpoint.IsSnapshot() {
			// a damaged list is tolerated as end-of-list
			curr = cplayout.CnoTerminator
			break
		}

		checkpointToCpInfo(checkpoint, &ci[n])
		n++

		next = checkpoint.SnapshotList.Next
		if 0 == next {
			// reached the end of the snapshot list
			curr = cplayout.CnoTerminator
			break
		}

		nextBlkoff = cpfile.getBlkoff(next)
		if currBlkoff != nextBlkoff {
			cpBlk, err = cpfile.getCheckpointBlock(next, false)
			if nil != err {
				if blunder.Is(err, blunder.NotFoundError) {
					// a hole reached through the snapshot list is a
					// bug somewhere, but not worth failing the walk
					logger.Warnf("cpfile [%s]: snapshot list points into a hole (cno=%v)",
						cpfile.volume.Name(), next)
					curr = cplayout.CnoTerminator
					err = nil
					break
				}
				return
			}
		}
		curr = next
		currBlkoff = nextBlkoff
	}

	*cnop = curr
	err = nil
	return
}

func (cpfile *cpfileStruct) GetCpinfo(cnop *uint64, mode CpMode, ci []CpInfo) (n int, err error) {
	cpfile.stats.GetCpinfoOps.Increment()

	switch mode {
	case CheckpointMode:
		n, err = cpfile.doGetCpinfoCheckpointMode(cnop, ci)
	case SnapshotMode:
		n, err = cpfile.doGetCpinfoSnapshotMode(cnop, ci)
	default:
		err = blunder.NewError(blunder.InvalidArgError, "unknown checkpoint mode %v", mode)
	}
	return
}

func (cpfile *cpfileStruct) setSnapshot(cno uint64) (err error) {
	var (
		checkpoint     *cplayout.CheckpointV1Struct
		cpBlk          mdt.Block
		curr           uint64
		currBlk        mdt.Block
		currBlkoff     uint64
		currListOffset uint64
		header         *cplayout.CpfileHeaderV1Struct
		headerBlk      mdt.Block
		prev           uint64
		prevBlk        mdt.Block
		prevBlkoff     uint64
		prevListOffset uint64
		ssl            *cplayout.SnapshotListV1Struct
	)

	if 0 == cno {
		err = blunder.NewError(blunder.NotFoundError, "checkpoint number 0 is reserved")
		return
	}

	err = cpfile.requireWritable()
	if nil != err {
		return
	}

	cpfile.file.Lock()
	defer cpfile.file.Unlock()

	headerBlk, err = cpfile.getHeaderBlock()
	if nil != err {
		return
	}

	cpBlk, err = cpfile.getCheckpointBlock(cno, false)
	if nil != err {
		return
	}

	checkpoint, err = cpfile.readEntry(cpBlk, cno)
	if nil != err {
		return
	}
	if checkpoint.IsInvalid() {
		err = blunder.NewError(blunder.NotFoundError, "no checkpoint numbered %v", cno)
		return
	}
	if checkpoint.IsSnapshot() {
		// already a snapshot
		err = nil
		return
	}

	// Find the last snapshot before the checkpoint being changed to
	// snapshot mode by going backwards through the snapshot list.
	// Set "prev" to its checkpoint number, or 0 if not found.
	header, err = cpfile.readHeader(headerBlk)
	if nil != err {
		return
	}

	curr = 0
	currBlk = headerBlk
	currBlkoff = 0
	currListOffset = cplayout.CpfileHeaderV1SnapshotListOffset
	prev = header.SnapshotList.Prev

	for prev > cno {
		prevBlkoff = cpfile.getBlkoff(prev)
		curr = prev
		if currBlkoff != prevBlkoff {
			currBlk, err = cpfile.getCheckpointBlock(curr, false)
			if nil != err {
				return
			}
		}
		currListOffset = cpfile.snapshotListOffset(curr)
		ssl, err = cpfile.getSnapshotListAt(currBlk, currListOffset)
		if nil != err {
			return
		}
		currBlkoff = prevBlkoff
		prev = ssl.Prev
	}

	if 0 != prev {
		prevBlk, err = cpfile.getCheckpointBlock(prev, false)
		if nil != err {
			return
		}
		prevListOffset = cpfile.snapshotListOffset(prev)
	} else {
		prevBlk = headerBlk
		prevListOffset = cplayout.CpfileHeaderV1SnapshotListOffset
	}

	// Update the list entry for the next snapshot
	ssl, err = cpfile.getSnapshotListAt(currBlk, currListOffset)
	if nil != err {
		return
	}
	ssl.Prev = cno
	err = cpfile.putSnapshotListAt(currBlk, currListOffset, ssl)
	if nil != err {
		return
	}

	// Update the checkpoint being changed to a snapshot
	checkpoint.SnapshotList.Next = curr
	checkpoint.SnapshotList.Prev = prev
	checkpoint.SetSnapshot()
	err = cpfile.writeEntry(cpBlk, cno, checkpoint)
	if nil != err {
		return
	}

	// Update the list entry for the previous snapshot
	ssl, err = cpfile.getSnapshotListAt(prevBlk, prevListOffset)
	if nil != err {
		return
	}
	ssl.Next = cno
	err = cpfile.putSnapshotListAt(prevBlk, prevListOffset, ssl)
	if nil != err {
		return
	}

	// Update the statistics in the header
	header, err = cpfile.readHeader(headerBlk)
	if nil != err {
		return
	}
	header.Nsnapshots++
	err = cpfile.writeHeader(headerBlk, header)
	if nil != err {
		return
	}

	prevBlk.MarkDirty()
	currBlk.MarkDirty()
	cpBlk.MarkDirty()
	headerBlk.MarkDirty()
	cpfile.file.MarkDirty()

	err = nil
	return
}

func (cpfile *cpfileStruct) clearSnapshot(cno uint64) (err error) {
	var (
		checkpoint     *cplayout.CheckpointV1Struct
		cpBlk          mdt.Block
		header         *cplayout.CpfileHeaderV1Struct
		headerBlk      mdt.Block
		next           uint64
		nextBlk        mdt.Block
		nextListOffset uint64
		prev           uint64
		prevBlk        mdt.Block
		prevListOffset uint64
		ssl            *cplayout.SnapshotListV1Struct
	)

	if 0 == cno {
		err = blunder.NewError(blunder.NotFoundError, "checkpoint number 0 is reserved")
		return
	}

	err = cpfile.requireWritable()
	if nil != err {
		return
	}

	cpfile.file.Lock()
	defer cpfile.file.Unlock()

	headerBlk, err = cpfile.getHeaderBlock()
	if nil != err {
		return
	}

	cpBlk, err = cpfile.getCheckpointBlock(cno, false)
	if nil != err {
		return
	}

	checkpoint, err = cpfile.readEntry(cpBlk, cno)
	if nil != err {
		return
	}
	if checkpoint.IsInvalid() {
		err = blunder.NewError(blunder.NotFoundError, "no checkpoint numbered %v", cno)
		return
	}
	if !checkpoint.IsSnapshot() {
		// already a plain checkpoint
		err = nil
		return
	}

	next = checkpoint.SnapshotList.Next
	prev = checkpoint.SnapshotList.Prev

	if 0 != next {
		nextBlk, err = cpfile.getCheckpointBlock(next, false)
		if nil != err {
			return
		}
		nextListOffset = cpfile.snapshotListOffset(next)
	} else {
		nextBlk = headerBlk
		nextListOffset = cplayout.CpfileHeaderV1SnapshotListOffset
	}
	if 0 != prev {
		prevBlk, err = cpfile.getCheckpointBlock(prev, false)
		if nil != err {
			return
		}
		prevListOffset = cpfile.snapshotListOffset(prev)
	} else {
		prevBlk = headerBlk
		prevListOffset = cplayout.CpfileHeaderV1SnapshotListOffset
	}

	// Update the list entry for the next snapshot
	ssl, err = cpfile.getSnapshotListAt(nextBlk, nextListOffset)
	if nil != err {
		return
	}
	ssl.Prev = prev
	err = cpfile.putSnapshotListAt(nextBlk, nextListOffset, ssl)
	if nil != err {
		return
	}

	// Update the list entry for the previous snapshot
	ssl, err = cpfile.getSnapshotListAt(prevBlk, prevListOffset)
	if nil != err {
		return
	}
	ssl.Next = next
	err = cpfile.putSnapshotListAt(prevBlk, prevListOffset, ssl)
	if nil != err {
		return
	}

	// Update the snapshot being changed back to a plain checkpoint
	checkpoint.SnapshotList.Next = 0
	checkpoint.SnapshotList.Prev = 0
	checkpoint.ClearSnapshot()
	err = cpfile.writeEntry(cpBlk, cno, checkpoint)
	if nil != err {
		return
	}

	// Update the statistics in the header
	header, err = cpfile.readHeader(headerBlk)
	if nil != err {
		return
	}
	header.Nsnapshots--
	err = cpfile.writeHeader(headerBlk, header)
	if nil != err {
		return
	}

	nextBlk.MarkDirty()
	prevBlk.MarkDirty()
	cpBlk.MarkDirty()
	headerBlk.MarkDirty()
	cpfile.file.MarkDirty()

	err = nil
	return
}

func (cpfile *cpfileStruct) ChangeCpmode(cno uint64, mode CpMode) (err error) {
	var (
		mounted   MountedPredicate
		stopwatch *utils.Stopwatch
	)

	cpfile.stats.ChangeCpmodeOps.Increment()
	stopwatch = utils.NewStopwatch()
	defer func() {
		cpfile.stats.ChangeCpmodeUsec.Add(uint64(stopwatch.Stop() / time.Microsecond))
	}()

	switch mode {
	case CheckpointMode:
		cpfile.mountedMutex.Lock()
		mounted = cpfile.mounted
		cpfile.mountedMutex.Unlock()

		if (nil != mounted) && mounted(cno) {
			// a mounted snapshot stays a snapshot
			err = blunder.NewError(blunder.DevBusyError, "checkpoint %v is mounted", cno)
		} else {
			err = cpfile.clearSnapshot(cno)
		}
	case SnapshotMode:
		err = cpfile.setSnapshot(cno)
	default:
		err = blunder.NewError(blunder.InvalidArgError, "unknown checkpoint mode %v", mode)
	}
	return
}

func (cpfile *cpfileStruct) IsSnapshot(cno uint64) (isSnapshot bool, err error) {
	var (
		checkpoint *cplayout.CheckpointV1Struct
		cpBlk      mdt.Block
	)

	cpfile.stats.IsSnapshotOps.Increment()

	// CP number is invalid if it's zero or beyond the largest assigned
	if (0 == cno) || (cno >= cpfile.volume.Cno()) {
		err = blunder.NewError(blunder.NotFoundError, "no checkpoint numbered %v", cno)
		return
	}

	cpfile.file.RLock()
	defer cpfile.file.RUnlock()

	cpBlk, err = cpfile.getCheckpointBlock(cno, false)
	if nil != err {
		return
	}

	checkpoint, err = cpfile.readEntry(cpBlk, cno)
	if nil != err {
		return
	}
	if checkpoint.IsInvalid() {
		err = blunder.NewError(blunder.NotFoundError, "no checkpoint numbered %v", cno)
		return
	}

	isSnapshot = checkpoint.IsSnapshot()
	err = nil
	return
}

func (cpfile *cpfileStruct) GetStat() (cpStat CpStat, err error) {
	var (
		header    *cplayout.CpfileHeaderV1Struct
		headerBlk mdt.Block
	)

	cpfile.stats.GetStatOps.Increment()

	cpfile.file.RLock()
	defer cpfile.file.RUnlock()

	headerBlk, err = cpfile.getHeaderBlock()
	if nil != err {
		return
	}
	header, err = cpfile.readHeader(headerBlk)
	if nil != err {
		return
	}

	cpStat.Cno = cpfile.volume.Cno()
	cpStat.Ncps = header.Ncheckpoints
	cpStat.Nsss = header.Nsnapshots

	err = nil
	return
}

func (cpfile *cpfileStruct) SetMountedPredicate(mounted MountedPredicate) {
	cpfile.mountedMutex.Lock()
	cpfile.mounted = mounted
	cpfile.mountedMutex.Unlock()
}
