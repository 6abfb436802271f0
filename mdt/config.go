package mdt

import (
	"github.com/seqfs/seqfs/blunder"
	"github.com/seqfs/seqfs/conf"
	"github.com/seqfs/seqfs/logger"
)

// firstValidCno is where a fresh volume's checkpoint-number counter starts;
// checkpoint number 0 is reserved.
const firstValidCno uint64 = 1

func up(confMap conf.ConfMap) (err error) {
	var (
		blockSize     uint64
		readOnly      bool
		volume        *volumeStruct
		volumeList    []string
		volumeName    string
		volumeSection string
	)

	globals.volumeMapMutex.Lock()
	defer globals.volumeMapMutex.Unlock()

	if nil != globals.volumeMap {
		err = blunder.NewError(blunder.AlreadyError, "mdt.Up() called while already up")
		return
	}

	volumeList, err = confMap.FetchOptionValueStringSlice("FSGlobals", "VolumeList")
	if nil != err {
		err = blunder.AddError(err, blunder.InvalidArgError)
		return
	}

	globals.volumeMap = make(map[string]*volumeStruct)

	for _, volumeName = range volumeList {
		volumeSection = "Volume:" + volumeName

		blockSize, err = confMap.FetchOptionValueUint64(volumeSection, "BlockSize")
		if nil != err {
			globals.volumeMap = nil
			err = blunder.AddError(err, blunder.InvalidArgError)
			return
		}

		readOnly, err = confMap.FetchOptionValueBool(volumeSection, "ReadOnly")
		if nil != err {
			readOnly = false
		}

		volume = &volumeStruct{
			volumeName: volumeName,
			blockSize:  blockSize,
			nextCno:    firstValidCno,
			fileMap:    make(map[uint64]*fileStruct),
		}
		volume.SetReadOnly(readOnly)

		globals.volumeMap[volumeName] = volume

		logger.Infof("mdt.Up(): volume '%s' block size %v read-only %v", volumeName, blockSize, readOnly)
	}

	err = nil
	return
}

func down() (err error) {
	globals.volumeMapMutex.Lock()
	defer globals.volumeMapMutex.Unlock()

	globals.volumeMap = nil

	err = nil
	return
}

func fetchVolumeHandle(volumeName string) (volume Volume, err error) {
	var (
		ok         bool
		volumeImpl *volumeStruct
	)

	globals.volumeMapMutex.Lock()
	defer globals.volumeMapMutex.Unlock()

	if nil == globals.volumeMap {
		err = blunder.NewError(blunder.InvalidArgError, "mdt.FetchVolumeHandle() called while down")
		return
	}

	volumeImpl, ok = globals.volumeMap[volumeName]
	if !ok {
		err = blunder.NewError(blunder.NotFoundError, "no volume named '%s'", volumeName)
		return
	}

	volume = volumeImpl
	err = nil
	return
}
