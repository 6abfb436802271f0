package cpfile

import (
	"github.com/seqfs/seqfs/blunder"
	"github.com/seqfs/seqfs/bucketstats"
	"github.com/seqfs/seqfs/cplayout"
	"github.com/seqfs/seqfs/logger"
	"github.com/seqfs/seqfs/mdt"
	"github.com/seqfs/seqfs/trackedlock"
)

type globalsStruct struct {
	cpfileMapMutex trackedlock.Mutex
	cpfileMap      map[string]*cpfileStruct // volume name -> handle
}

var globals globalsStruct

func validateCheckpointSize(volume mdt.Volume, cpsize uint64) (err error) {
	if cpsize > volume.BlockSize() {
		logger.Errorf("cpfile [%s]: too large checkpoint size: %v bytes", volume.Name(), cpsize)
		err = blunder.NewError(blunder.InvalidArgError, "too large checkpoint size: %v bytes", cpsize)
		return
	}
	if cpsize < cplayout.CheckpointSizeMin {
		logger.Errorf("cpfile [%s]: too small checkpoint size: %v bytes", volume.Name(), cpsize)
		err = blunder.NewError(blunder.InvalidArgError, "too small checkpoint size: %v bytes", cpsize)
		return
	}

	err = nil
	return
}

func format(volume mdt.Volume, cpsize uint64) (err error) {
	var (
		file      mdt.File
		headerBlk mdt.Block
		rawInode  *cplayout.InodeV1Struct
		scratch   cpfileStruct
	)

	err = validateCheckpointSize(volume, cpsize)
	if nil != err {
		return
	}

	if volume.IsReadOnly() {
		err = blunder.NewError(blunder.ReadOnlyError, "volume '%s' is mounted read-only", volume.Name())
		return
	}

	file, err = volume.FetchFile(cplayout.CpfileInodeNumber)
	if nil != err {
		return
	}

	err = file.SetEntrySize(cpsize, cplayout.CpfileHeaderV1Size)
	if nil != err {
		return
	}

	file.Lock()
	defer file.Unlock()

	// an existing block 0 means the volume already has a cpfile
	_, err = file.GetBlock(0, false, nil)
	if nil == err {
		err = blunder.NewError(blunder.FileExistsError, "volume '%s' already has a checkpoint file", volume.Name())
		return
	}
	if !blunder.Is(err, blunder.NotFoundError) {
		return
	}

	// scratch handle so block initialization can use the layout helpers
	scratch.volume = volume
	scratch.file = file
	scratch.cpsize = cpsize

	headerBlk, err = file.GetBlock(0, true, scratch.blockInit)
	if nil != err {
		return
	}

	// the header occupies slot 0 of block 0; zero it over the INVALID
	// marker left by block initialization
	err = scratch.writeHeader(headerBlk, &cplayout.CpfileHeaderV1Struct{})
	if nil != err {
		return
	}

	rawInode = &cplayout.InodeV1Struct{
		Mode:       cplayout.InodeModeRegularFile,
		LinksCount: 1,
		Blocks:     1,
		Size:       volume.BlockSize(),
	}
	err = file.LoadInodeRecord(rawInode)
	if nil != err {
		return
	}

	headerBlk.MarkDirty()
	file.MarkDirty()

	logger.Infof("cpfile [%s]: formatted with checkpoint size %v", volume.Name(), cpsize)

	err = nil
	return
}

func read(volume mdt.Volume, cpsize uint64, rawInode *cplayout.InodeV1Struct) (cpfile Cpfile, err error) {
	var (
		cpfileImpl *cpfileStruct
		file       mdt.File
		ok         bool
	)

	err = validateCheckpointSize(volume, cpsize)
	if nil != err {
		return
	}

	globals.cpfileMapMutex.Lock()
	defer globals.cpfileMapMutex.Unlock()

	if nil == globals.cpfileMap {
		globals.cpfileMap = make(map[string]*cpfileStruct)
	}

	cpfileImpl, ok = globals.cpfileMap[volume.Name()]
	if ok {
		// the handle is already bound
		cpfile = cpfileImpl
		err = nil
		return
	}

	file, err = volume.FetchFile(cplayout.CpfileInodeNumber)
	if nil != err {
		return
	}

	err = file.SetEntrySize(cpsize, cplayout.CpfileHeaderV1Size)
	if nil != err {
		return
	}

	err = file.LoadInodeRecord(rawInode)
	if nil != err {
		return
	}

	cpfileImpl = &cpfileStruct{
		volume: volume,
		file:   file,
		cpsize: cpsize,
	}

	bucketstats.Register("cpfile", volume.Name(), &cpfileImpl.stats)

	globals.cpfileMap[volume.Name()] = cpfileImpl

	cpfile = cpfileImpl
	err = nil
	return
}

func downAll() (err error) {
	var (
		volumeName string
	)

	globals.cpfileMapMutex.Lock()
	defer globals.cpfileMapMutex.Unlock()

	for volumeName = range globals.cpfileMap {
		bucketstats.UnRegister("cpfile", volumeName)
	}
	globals.cpfileMap = nil

	err = nil
	return
}
