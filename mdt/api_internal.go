package mdt

import (
	"fmt"
	"sync/atomic"

	"github.com/NVIDIA/sortedmap"

	"github.com/seqfs/seqfs/blunder"
	"github.com/seqfs/seqfs/cplayout"
	"github.com/seqfs/seqfs/logger"
	"github.com/seqfs/seqfs/trackedlock"
	"github.com/seqfs/seqfs/utils"
)

type blockStruct struct {
	file   *fileStruct
	blkoff uint64
	buf    []byte
	dirty  bool  // guarded by the file lock (writers) / only set while write-locked
	mapCnt int32 // outstanding Map() calls
}

type fileStruct struct {
	mdtLock trackedlock.RWMutex // the file's reader/writer lock (exposed via Lock()/RLock())

	volume      *volumeStruct
	inodeNumber uint64
	inodeRecord cplayout.InodeV1Struct

	entrySize        uint64
	headerBytes      uint64
	entriesPerBlock  uint64
	firstEntryOffset uint64

	blockMapMutex trackedlock.Mutex  // serializes blockMap and failureMap access
	blockMap      sortedmap.LLRBTree // blkoff -> *blockStruct
	dirty         bool
	failureMap    map[uint64]blunder.FsError
}

type volumeStruct struct {
	volumeName string
	blockSize  uint64
	readOnly   uint32 // 0 == read-write; accessed atomically
	nextCno    uint64 // accessed atomically; valid cnos are [1, nextCno)

	fileMapMutex trackedlock.Mutex
	fileMap      map[uint64]*fileStruct
}

type globalsStruct struct {
	volumeMapMutex trackedlock.Mutex
	volumeMap      map[string]*volumeStruct
}

var globals globalsStruct

//
// blockStruct
//

func (blk *blockStruct) Blkoff() (blkoff uint64) {
	blkoff = blk.blkoff
	return
}

func (blk *blockStruct) Map() (buf []byte) {
	atomic.AddInt32(&blk.mapCnt, 1)
	buf = blk.buf
	return
}

func (blk *blockStruct) Unmap() {
	mapCnt := atomic.AddInt32(&blk.mapCnt, -1)
	if mapCnt < 0 {
		err := fmt.Errorf("block at blkoff %v unmapped more times than mapped", blk.blkoff)
		logger.PanicfWithError(err, "mdt: volume '%s' inode %v", blk.file.volume.volumeName, blk.file.inodeNumber)
	}
}

func (blk *blockStruct) MarkDirty() {
	blk.dirty = true
}

func (blk *blockStruct) IsDirty() (dirty bool) {
	dirty = blk.dirty
	return
}

//
// fileStruct
//

func (file *fileStruct) InodeNumber() (inodeNumber uint64) {
	inodeNumber = file.inodeNumber
	return
}

func (file *fileStruct) VolumeName() (volumeName string) {
	volumeName = file.volume.volumeName
	return
}

func (file *fileStruct) BlockSize() (blockSize uint64) {
	blockSize = file.volume.blockSize
	return
}

func (file *fileStruct) SetEntrySize(entrySize uint64, headerBytes uint64) (err error) {
	if 0 == entrySize {
		err = blunder.NewError(blunder.InvalidArgError, "entry size must be non-zero")
		return
	}
	if entrySize > file.volume.blockSize {
		err = blunder.NewError(blunder.InvalidArgError,
			"entry size %v exceeds volume '%s' block size %v",
			entrySize, file.volume.volumeName, file.volume.blockSize)
		return
	}

	file.entrySize = entrySize
	file.headerBytes = headerBytes
	file.entriesPerBlock = file.volume.blockSize / entrySize
	file.firstEntryOffset = (headerBytes + entrySize - 1) / entrySize

	err = nil
	return
}

func (file *fileStruct) EntrySize() (entrySize uint64) {
	entrySize = file.entrySize
	return
}

func (file *fileStruct) EntriesPerBlock() (entriesPerBlock uint64) {
	entriesPerBlock = file.entriesPerBlock
	return
}

func (file *fileStruct) FirstEntryOffset() (firstEntryOffset uint64) {
	firstEntryOffset = file.firstEntryOffset
	return
}

func (file *fileStruct) armedFailure(blkoff uint64) (err error, armed bool) {
	fsErr, armed := file.failureMap[blkoff]
	if armed {
		delete(file.failureMap, blkoff)
		err = blunder.NewError(fsErr, "injected failure at blkoff %v", blkoff)
	}
	return
}

func (file *fileStruct) GetBlock(blkoff uint64, create bool, initFn BlockInitFunc) (blk Block, err error) {
	var (
		newBlk *blockStruct
		ok     bool
		value  sortedmap.Value
	)

	file.blockMapMutex.Lock()
	defer file.blockMapMutex.Unlock()

	err, armed := file.armedFailure(blkoff)
	if armed {
		blk = nil
		return
	}

	value, ok, err = file.blockMap.GetByKey(blkoff)
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}
	if ok {
		blk = value.(*blockStruct)
		err = nil
		return
	}

	if !create {
		err = blunder.NewError(blunder.NotFoundError,
			"volume '%s' inode %v has no block at blkoff %v",
			file.volume.volumeName, file.inodeNumber, blkoff)
		return
	}

	if file.volume.IsReadOnly() {
		err = blunder.NewError(blunder.ReadOnlyError,
			"volume '%s' is mounted read-only", file.volume.volumeName)
		return
	}

	newBlk = &blockStruct{
		file:   file,
		blkoff: blkoff,
		buf:    make([]byte, file.volume.blockSize),
	}

	if nil != initFn {
		initFn(blkoff, newBlk.buf)
	}

	ok, err = file.blockMap.Put(blkoff, newBlk)
	if nil != err || !ok {
		err = blunder.NewError(blunder.IOError,
			"volume '%s' inode %v unable to insert block at blkoff %v: %v",
			file.volume.volumeName, file.inodeNumber, blkoff, err)
		return
	}

	// a freshly allocated block must reach the log
	newBlk.dirty = true
	file.dirty = true

	blk = newBlk
	err = nil
	return
}

func (file *fileStruct) FindBlock(startBlkoff uint64, endBlkoff uint64) (foundBlkoff uint64, blk Block, err error) {
	var (
		index int
		key   sortedmap.Key
		ok    bool
		value sortedmap.Value
	)

	if startBlkoff > endBlkoff {
		err = blunder.NewError(blunder.NotFoundError,
			"empty blkoff range [%v, %v]", startBlkoff, endBlkoff)
		return
	}

	file.blockMapMutex.Lock()
	defer file.blockMapMutex.Unlock()

	// index of the first block at or beyond startBlkoff
	index, _, err = file.blockMap.BisectRight(startBlkoff)
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	key, value, ok, err = file.blockMap.GetByIndex(index)
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}
	if !ok || key.(uint64) > endBlkoff {
		err = blunder.NewError(blunder.NotFoundError,
			"volume '%s' inode %v has no block in blkoff range [%v, %v]",
			file.volume.volumeName, file.inodeNumber, startBlkoff, endBlkoff)
		return
	}

	foundBlkoff = key.(uint64)
	blk = value.(*blockStruct)
	err = nil
	return
}

func (file *fileStruct) DeleteBlock(blkoff uint64) (err error) {
	var (
		ok bool
	)

	if file.volume.IsReadOnly() {
		err = blunder.NewError(blunder.ReadOnlyError,
			"volume '%s' is mounted read-only", file.volume.volumeName)
		return
	}

	file.blockMapMutex.Lock()
	defer file.blockMapMutex.Unlock()

	err, armed := file.armedFailure(blkoff)
	if armed {
		return
	}

	ok, err = file.blockMap.DeleteByKey(blkoff)
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}
	if !ok {
		// deleting a hole means the caller's metadata is corrupt
		err = blunder.NewError(blunder.IOError,
			"volume '%s' inode %v has no block to delete at blkoff %v",
			file.volume.volumeName, file.inodeNumber, blkoff)
		return
	}

	file.dirty = true

	err = nil
	return
}

func (file *fileStruct) MarkDirty() {
	file.blockMapMutex.Lock()
	file.dirty = true
	file.blockMapMutex.Unlock()
}

func (file *fileStruct) IsDirty() (dirty bool) {
	file.blockMapMutex.Lock()
	dirty = file.dirty
	file.blockMapMutex.Unlock()
	return
}

func (file *fileStruct) FlushDirty() (dirtyBlkoffs []uint64) {
	var (
		index    int
		key      sortedmap.Key
		ok       bool
		value    sortedmap.Value
		blk      *blockStruct
		numBlock int
		err      error
	)

	file.blockMapMutex.Lock()
	defer file.blockMapMutex.Unlock()

	dirtyBlkoffs = make([]uint64, 0)

	numBlock, err = file.blockMap.Len()
	if nil != err {
		logger.ErrorfWithError(err, "mdt: volume '%s' inode %v block map Len() failed",
			file.volume.volumeName, file.inodeNumber)
		return
	}

	for index = 0; index < numBlock; index++ {
		key, value, ok, err = file.blockMap.GetByIndex(index)
		if nil != err || !ok {
			logger.ErrorfWithError(err, "mdt: volume '%s' inode %v block map GetByIndex(%v) failed",
				file.volume.volumeName, file.inodeNumber, index)
			return
		}
		blk = value.(*blockStruct)
		if blk.dirty {
			blk.dirty = false
			dirtyBlkoffs = append(dirtyBlkoffs, key.(uint64))
		}
	}

	file.dirty = false

	return
}

func (file *fileStruct) InodeRecord() (inodeRecord *cplayout.InodeV1Struct) {
	inodeRecord = &file.inodeRecord
	return
}

func (file *fileStruct) LoadInodeRecord(rawInode *cplayout.InodeV1Struct) (err error) {
	if nil == rawInode {
		err = blunder.NewError(blunder.InvalidArgError, "raw inode must be non-nil")
		return
	}
	if 0 == rawInode.Mode {
		err = blunder.NewError(blunder.InvalidArgError,
			"raw inode for volume '%s' inode %v has invalid mode 0",
			file.volume.volumeName, file.inodeNumber)
		return
	}

	file.inodeRecord = *rawInode

	err = nil
	return
}

func (file *fileStruct) InjectBlockFailure(blkoff uint64, fsErr blunder.FsError) {
	file.blockMapMutex.Lock()
	file.failureMap[blkoff] = fsErr
	file.blockMapMutex.Unlock()
}

func (file *fileStruct) Lock() {
	file.mdtLock.Lock()
}

func (file *fileStruct) Unlock() {
	file.mdtLock.Unlock()
}

func (file *fileStruct) RLock() {
	file.mdtLock.RLock()
}

func (file *fileStruct) RUnlock() {
	file.mdtLock.RUnlock()
}

// sortedmap.LLRBTreeCallbacks

func (file *fileStruct) DumpKey(key sortedmap.Key) (keyAsString string, err error) {
	keyAsString = utils.Uint64ToHexStr(key.(uint64))
	err = nil
	return
}

func (file *fileStruct) DumpValue(value sortedmap.Value) (valueAsString string, err error) {
	valueAsString = fmt.Sprintf("%p", value.(*blockStruct))
	err = nil
	return
}

//
// volumeStruct
//

func (volume *volumeStruct) Name() (volumeName string) {
	volumeName = volume.volumeName
	return
}

func (volume *volumeStruct) BlockSize() (blockSize uint64) {
	blockSize = volume.blockSize
	return
}

func (volume *volumeStruct) IsReadOnly() (readOnly bool) {
	readOnly = (0 != atomic.LoadUint32(&volume.readOnly))
	return
}

func (volume *volumeStruct) SetReadOnly(readOnly bool) {
	if readOnly {
		atomic.StoreUint32(&volume.readOnly, 1)
	} else {
		atomic.StoreUint32(&volume.readOnly, 0)
	}
}

func (volume *volumeStruct) Cno() (cno uint64) {
	cno = atomic.LoadUint64(&volume.nextCno)
	return
}

func (volume *volumeStruct) ReserveCno() (cno uint64) {
	cno = atomic.AddUint64(&volume.nextCno, 1) - 1
	return
}

func (volume *volumeStruct) FetchFile(inodeNumber uint64) (file File, err error) {
	var (
		fileImpl *fileStruct
		ok       bool
	)

	volume.fileMapMutex.Lock()
	defer volume.fileMapMutex.Unlock()

	fileImpl, ok = volume.fileMap[inodeNumber]
	if !ok {
		fileImpl = &fileStruct{
			volume:      volume,
			inodeNumber: inodeNumber,
			failureMap:  make(map[uint64]blunder.FsError),
		}
		fileImpl.blockMap = sortedmap.NewLLRBTree(sortedmap.CompareUint64, fileImpl)
		volume.fileMap[inodeNumber] = fileImpl
	}

	file = fileImpl
	err = nil
	return
}
