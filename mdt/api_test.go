package mdt

import (
	"testing"

	"github.com/seqfs/seqfs/blunder"
	"github.com/seqfs/seqfs/conf"
	"github.com/seqfs/seqfs/cplayout"
	"github.com/seqfs/seqfs/logger"
	"github.com/seqfs/seqfs/trackedlock"
)

var testConfMap conf.ConfMap

func testSetup(t *testing.T) {
	var (
		err             error
		testConfStrings []string
	)

	testConfStrings = []string{
		"Logging.LogFilePath=/dev/null",
		"TrackedLock.LockHoldTimeLimit=0s",
		"TrackedLock.LockCheckPeriod=0s",
		"FSGlobals.VolumeList=TestVolume",
		"Volume:TestVolume.BlockSize=1024",
	}

	testConfMap, err = conf.MakeConfMapFromStrings(testConfStrings)
	if nil != err {
		t.Fatalf("conf.MakeConfMapFromStrings() failed: %v", err)
	}

	err = logger.Up(testConfMap)
	if nil != err {
		t.Fatalf("logger.Up() failed: %v", err)
	}

	err = trackedlock.Up(testConfMap)
	if nil != err {
		t.Fatalf("trackedlock.Up() failed: %v", err)
	}

	err = Up(testConfMap)
	if nil != err {
		t.Fatalf("mdt.Up() failed: %v", err)
	}
}

func testTeardown(t *testing.T) {
	var (
		err error
	)

	err = Down()
	if nil != err {
		t.Fatalf("mdt.Down() failed: %v", err)
	}

	err = trackedlock.Down()
	if nil != err {
		t.Fatalf("trackedlock.Down() failed: %v", err)
	}

	err = logger.Down()
	if nil != err {
		t.Fatalf("logger.Down() failed: %v", err)
	}
}

func testFetchFile(t *testing.T) (volume Volume, file File) {
	var (
		err error
	)

	volume, err = FetchVolumeHandle("TestVolume")
	if nil != err {
		t.Fatalf("FetchVolumeHandle(\"TestVolume\") failed: %v", err)
	}

	file, err = volume.FetchFile(cplayout.CpfileInodeNumber)
	if nil != err {
		t.Fatalf("FetchFile() failed: %v", err)
	}

	return
}

func TestVolumeHandle(t *testing.T) {
	testSetup(t)

	volume, err := FetchVolumeHandle("TestVolume")
	if nil != err {
		t.Fatalf("FetchVolumeHandle(\"TestVolume\") failed: %v", err)
	}
	if "TestVolume" != volume.Name() {
		t.Fatalf("volume.Name() returned \"%v\"", volume.Name())
	}
	if 1024 != volume.BlockSize() {
		t.Fatalf("volume.BlockSize() returned %v", volume.BlockSize())
	}
	if volume.IsReadOnly() {
		t.Fatalf("volume.IsReadOnly() returned true")
	}

	_, err = FetchVolumeHandle("NoSuchVolume")
	if !blunder.Is(err, blunder.NotFoundError) {
		t.Fatalf("FetchVolumeHandle(\"NoSuchVolume\") returned %v (expected ENOENT)", err)
	}

	// cno counter starts at 1 and is monotone
	if 1 != volume.Cno() {
		t.Fatalf("volume.Cno() returned %v (expected 1)", volume.Cno())
	}
	if 1 != volume.ReserveCno() {
		t.Fatalf("volume.ReserveCno() returned unexpected cno")
	}
	if 2 != volume.ReserveCno() {
		t.Fatalf("volume.ReserveCno() returned unexpected cno")
	}
	if 3 != volume.Cno() {
		t.Fatalf("volume.Cno() returned %v (expected 3)", volume.Cno())
	}

	testTeardown(t)
}

func TestFileHandleCache(t *testing.T) {
	testSetup(t)

	volume, file := testFetchFile(t)

	// repeated FetchFile() returns the same handle
	fileAgain, err := volume.FetchFile(cplayout.CpfileInodeNumber)
	if nil != err {
		t.Fatalf("FetchFile() [case 2] failed: %v", err)
	}
	if file != fileAgain {
		t.Fatalf("FetchFile() returned a different handle on the second call")
	}

	err = file.SetEntrySize(256, 32)
	if nil != err {
		t.Fatalf("SetEntrySize() failed: %v", err)
	}
	if 256 != file.EntrySize() {
		t.Fatalf("EntrySize() returned %v", file.EntrySize())
	}
	if 4 != file.EntriesPerBlock() {
		t.Fatalf("EntriesPerBlock() returned %v (expected 4)", file.EntriesPerBlock())
	}
	if 1 != file.FirstEntryOffset() {
		t.Fatalf("FirstEntryOffset() returned %v (expected 1)", file.FirstEntryOffset())
	}

	// entry size larger than a block is rejected
	err = file.SetEntrySize(2048, 32)
	if !blunder.Is(err, blunder.InvalidArgError) {
		t.Fatalf("SetEntrySize(2048) returned %v (expected EINVAL)", err)
	}

	testTeardown(t)
}

func TestBlockLifecycle(t *testing.T) {
	testSetup(t)

	_, file := testFetchFile(t)

	// a hole is ENOENT without create
	_, err := file.GetBlock(7, false, nil)
	if !blunder.Is(err, blunder.NotFoundError) {
		t.Fatalf("GetBlock(hole, create=false) returned %v (expected ENOENT)", err)
	}

	// create runs the init function over the backing memory
	initRan := false
	blk, err := file.GetBlock(7, true, func(blkoff uint64, buf []byte) {
		if 7 != blkoff {
			t.Errorf("init function called with blkoff %v", blkoff)
		}
		if 1024 != len(buf) {
			t.Errorf("init function called with %v byte buffer", len(buf))
		}
		buf[0] = 0xA5
		initRan = true
	})
	if nil != err {
		t.Fatalf("GetBlock(create=true) failed: %v", err)
	}
	if !initRan {
		t.Fatalf("GetBlock(create=true) did not run the init function")
	}
	if !blk.IsDirty() {
		t.Fatalf("a freshly created block is not dirty")
	}
	if !file.IsDirty() {
		t.Fatalf("creating a block did not dirty the file")
	}

	buf := blk.Map()
	if 0xA5 != buf[0] {
		t.Fatalf("created block lost its initialized content")
	}
	blk.Unmap()

	// re-fetch without create finds it
	blkAgain, err := file.GetBlock(7, false, nil)
	if nil != err {
		t.Fatalf("GetBlock(7) failed: %v", err)
	}
	if blk != blkAgain {
		t.Fatalf("GetBlock(7) returned a different block")
	}

	// FindBlock scans past holes
	_, err = file.GetBlock(12, true, nil)
	if nil != err {
		t.Fatalf("GetBlock(12, create=true) failed: %v", err)
	}

	foundBlkoff, foundBlk, err := file.FindBlock(0, 20)
	if nil != err {
		t.Fatalf("FindBlock(0, 20) failed: %v", err)
	}
	if (7 != foundBlkoff) || (foundBlk != blk) {
		t.Fatalf("FindBlock(0, 20) returned blkoff %v", foundBlkoff)
	}

	foundBlkoff, _, err = file.FindBlock(8, 20)
	if nil != err {
		t.Fatalf("FindBlock(8, 20) failed: %v", err)
	}
	if 12 != foundBlkoff {
		t.Fatalf("FindBlock(8, 20) returned blkoff %v (expected 12)", foundBlkoff)
	}

	_, _, err = file.FindBlock(13, 20)
	if !blunder.Is(err, blunder.NotFoundError) {
		t.Fatalf("FindBlock(13, 20) returned %v (expected ENOENT)", err)
	}

	_, _, err = file.FindBlock(20, 13)
	if !blunder.Is(err, blunder.NotFoundError) {
		t.Fatalf("FindBlock(20, 13) returned %v (expected ENOENT)", err)
	}

	// delete leaves a hole; deleting the hole again is corruption
	err = file.DeleteBlock(12)
	if nil != err {
		t.Fatalf("DeleteBlock(12) failed: %v", err)
	}
	_, err = file.GetBlock(12, false, nil)
	if !blunder.Is(err, blunder.NotFoundError) {
		t.Fatalf("GetBlock(12) after delete returned %v (expected ENOENT)", err)
	}
	err = file.DeleteBlock(12)
	if !blunder.Is(err, blunder.IOError) {
		t.Fatalf("DeleteBlock(12) of a hole returned %v (expected EIO)", err)
	}

	testTeardown(t)
}

func TestFlushDirty(t *testing.T) {
	testSetup(t)

	_, file := testFetchFile(t)

	_, err := file.GetBlock(3, true, nil)
	if nil != err {
		t.Fatalf("GetBlock(3, create=true) failed: %v", err)
	}
	_, err = file.GetBlock(1, true, nil)
	if nil != err {
		t.Fatalf("GetBlock(1, create=true) failed: %v", err)
	}

	dirtyBlkoffs := file.FlushDirty()
	if (2 != len(dirtyBlkoffs)) || (1 != dirtyBlkoffs[0]) || (3 != dirtyBlkoffs[1]) {
		t.Fatalf("FlushDirty() returned %v (expected [1 3])", dirtyBlkoffs)
	}
	if file.IsDirty() {
		t.Fatalf("file still dirty after FlushDirty()")
	}

	// a flush with nothing dirty reports nothing
	dirtyBlkoffs = file.FlushDirty()
	if 0 != len(dirtyBlkoffs) {
		t.Fatalf("FlushDirty() returned %v (expected [])", dirtyBlkoffs)
	}

	// re-dirtying one block shows up on the next flush
	blk, err := file.GetBlock(3, false, nil)
	if nil != err {
		t.Fatalf("GetBlock(3) failed: %v", err)
	}
	blk.MarkDirty()

	dirtyBlkoffs = file.FlushDirty()
	if (1 != len(dirtyBlkoffs)) || (3 != dirtyBlkoffs[0]) {
		t.Fatalf("FlushDirty() returned %v (expected [3])", dirtyBlkoffs)
	}

	testTeardown(t)
}

func TestReadOnlyVolume(t *testing.T) {
	testSetup(t)

	volume, file := testFetchFile(t)

	_, err := file.GetBlock(0, true, nil)
	if nil != err {
		t.Fatalf("GetBlock(0, create=true) failed: %v", err)
	}

	volume.SetReadOnly(true)

	_, err = file.GetBlock(5, true, nil)
	if !blunder.Is(err, blunder.ReadOnlyError) {
		t.Fatalf("GetBlock(create=true) on a read-only volume returned %v (expected EROFS)", err)
	}

	err = file.DeleteBlock(0)
	if !blunder.Is(err, blunder.ReadOnlyError) {
		t.Fatalf("DeleteBlock() on a read-only volume returned %v (expected EROFS)", err)
	}

	volume.SetReadOnly(false)

	_, err = file.GetBlock(5, true, nil)
	if nil != err {
		t.Fatalf("GetBlock(create=true) after clearing read-only failed: %v", err)
	}

	testTeardown(t)
}

func TestInodeRecord(t *testing.T) {
	testSetup(t)

	_, file := testFetchFile(t)

	rawInode := &cplayout.InodeV1Struct{
		Mode:       cplayout.InodeModeRegularFile,
		LinksCount: 1,
		Size:       4096,
	}

	err := file.LoadInodeRecord(rawInode)
	if nil != err {
		t.Fatalf("LoadInodeRecord() failed: %v", err)
	}
	if *file.InodeRecord() != *rawInode {
		t.Fatalf("InodeRecord() returned %+v", file.InodeRecord())
	}

	err = file.LoadInodeRecord(&cplayout.InodeV1Struct{})
	if !blunder.Is(err, blunder.InvalidArgError) {
		t.Fatalf("LoadInodeRecord() of a zero-mode inode returned %v (expected EINVAL)", err)
	}

	err = file.LoadInodeRecord(nil)
	if !blunder.Is(err, blunder.InvalidArgError) {
		t.Fatalf("LoadInodeRecord(nil) returned %v (expected EINVAL)", err)
	}

	testTeardown(t)
}

func TestInjectedFailure(t *testing.T) {
	testSetup(t)

	_, file := testFetchFile(t)

	file.InjectBlockFailure(9, blunder.IOError)

	_, err := file.GetBlock(9, true, nil)
	if !blunder.Is(err, blunder.IOError) {
		t.Fatalf("GetBlock() with injected failure returned %v (expected EIO)", err)
	}

	// the failure is one-shot
	_, err = file.GetBlock(9, true, nil)
	if nil != err {
		t.Fatalf("GetBlock() after injected failure consumed failed: %v", err)
	}

	testTeardown(t)
}
