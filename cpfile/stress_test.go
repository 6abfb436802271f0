package cpfile

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/seqfs/seqfs/blunder"
	"github.com/seqfs/seqfs/cplayout"
)

const (
	testStressCheckpoints       = uint64(200)
	testStressSnapshotToggles   = 50
	testStressEnumerationPasses = 50
	testStressDeleteBatches     = 10
)

// Concurrent snapshot enumeration under the read lock racing snapshot mode
// changes under the write lock.  The lock serializes them; every enumeration
// must observe a well-formed, strictly increasing list, and the final state
// must satisfy all of the cpfile invariants.
func TestStressSnapshotListRaces(t *testing.T) {
	var (
		enumeratorsWG sync.WaitGroup
		togglersWG    sync.WaitGroup
	)

	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	volume, cpfile := testSetup(t)
	root := testMakeRoot(t, volume)

	testCreateFinalized(t, volume, cpfile, root, testStressCheckpoints)

	// seed some snapshots
	for cno := uint64(10); cno <= testStressCheckpoints; cno += 10 {
		err := cpfile.ChangeCpmode(cno, SnapshotMode)
		if nil != err {
			t.Fatalf("ChangeCpmode(%v, SnapshotMode) failed: %v", cno, err)
		}
	}

	// togglers move odd cnos in and out of snapshot mode
	for worker := uint64(0); worker < 4; worker++ {
		togglersWG.Add(1)
		go func(worker uint64) {
			defer togglersWG.Done()
			cno := 11 + 2*worker
			for i := 0; i < testStressSnapshotToggles; i++ {
				err := cpfile.ChangeCpmode(cno, SnapshotMode)
				if nil != err {
					t.Errorf("ChangeCpmode(%v, SnapshotMode) failed: %v", cno, err)
					return
				}
				err = cpfile.ChangeCpmode(cno, CheckpointMode)
				if nil != err {
					t.Errorf("ChangeCpmode(%v, CheckpointMode) failed: %v", cno, err)
					return
				}
				cno += 8
				if cno > testStressCheckpoints {
					cno = 11 + 2*worker
				}
			}
		}(worker)
	}

	// enumerators walk the whole snapshot list over and over
	for worker := 0; worker < 4; worker++ {
		enumeratorsWG.Add(1)
		go func() {
			defer enumeratorsWG.Done()
			ci := make([]CpInfo, 8)
			for i := 0; i < testStressEnumerationPasses; i++ {
				cno := uint64(0)
				lastCno := uint64(0)
				for {
					n, err := cpfile.GetCpinfo(&cno, SnapshotMode, ci)
					if nil != err {
						t.Errorf("GetCpinfo(SnapshotMode) failed: %v", err)
						return
					}
					for j := 0; j < n; j++ {
						if ci[j].Cno <= lastCno {
							t.Errorf("snapshot enumeration not strictly increasing: %v after %v",
								ci[j].Cno, lastCno)
							return
						}
						lastCno = ci[j].Cno
					}
					if (0 == n) || (cplayout.CnoTerminator == cno) {
						break
					}
				}
			}
		}()
	}

	togglersWG.Wait()
	enumeratorsWG.Wait()

	testCheckInvariants(t, cpfile)
	testTeardown(t)
}

// Concurrent creates, finalizes, range deletes and stat calls.  The cleaner
// trails the writer so it only ever deletes fully finalized checkpoints.
func TestStressCheckpointChurn(t *testing.T) {
	var (
		finalizedCno uint64 // accessed atomically
		workersWG    sync.WaitGroup
	)

	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	volume, cpfile := testSetup(t)
	root := testMakeRoot(t, volume)

	// a writer appending checkpoints
	workersWG.Add(1)
	go func() {
		defer workersWG.Done()
		for i := uint64(0); i < testStressCheckpoints; i++ {
			cno := volume.ReserveCno()
			err := cpfile.CreateCheckpoint(cno)
			if nil != err {
				t.Errorf("CreateCheckpoint(%v) failed: %v", cno, err)
				return
			}
			err = cpfile.FinalizeCheckpoint(cno, root, 1, 1600000000+cno, 0 != cno%2)
			if nil != err {
				t.Errorf("FinalizeCheckpoint(%v) failed: %v", cno, err)
				return
			}
			atomic.StoreUint64(&finalizedCno, cno)
		}
	}()

	// a cleaner deleting from the front, trailing the writer
	workersWG.Add(1)
	go func() {
		defer workersWG.Done()
		for batch := 0; batch < testStressDeleteBatches; batch++ {
			start := uint64(batch)*10 + 1
			for atomic.LoadUint64(&finalizedCno) < start+9 {
				runtime.Gosched()
			}
			err := cpfile.DeleteCheckpoints(start, start+10)
			if (nil != err) && !blunder.Is(err, blunder.DevBusyError) {
				t.Errorf("DeleteCheckpoints(%v, %v) failed: %v", start, start+10, err)
				return
			}
		}
	}()

	// readers polling stats and enumerating
	for worker := 0; worker < 2; worker++ {
		workersWG.Add(1)
		go func() {
			defer workersWG.Done()
			ci := make([]CpInfo, 16)
			for i := 0; i < testStressEnumerationPasses; i++ {
				_, err := cpfile.GetStat()
				if nil != err {
					t.Errorf("GetStat() failed: %v", err)
					return
				}
				cno := uint64(1)
				for {
					n, err := cpfile.GetCpinfo(&cno, CheckpointMode, ci)
					if nil != err {
						t.Errorf("GetCpinfo(CheckpointMode) failed: %v", err)
						return
					}
					if 0 == n {
						break
					}
				}
			}
		}()
	}

	workersWG.Wait()

	testCheckInvariants(t, cpfile)
	testTeardown(t)
}
