package main

import (
	"fmt"
	"os"
	"time"

	"github.com/seqfs/seqfs/bucketstats"
	"github.com/seqfs/seqfs/conf"
	"github.com/seqfs/seqfs/cpfile"
	"github.com/seqfs/seqfs/cplayout"
	"github.com/seqfs/seqfs/logger"
	"github.com/seqfs/seqfs/mdt"
	"github.com/seqfs/seqfs/trackedlock"
)

var (
	checkpointsToWrite uint64
	doCreate           bool
	doDelete           bool
	doEnumerate        bool
	doSnapshot         bool
	volumeHandle       mdt.Volume
	volumeName         string
)

func usage(file *os.File) {
	fmt.Fprintf(file, "Usage:\n")
	fmt.Fprintf(file, "    %v [csed] checkpoints conf-file [section.option=value]*\n", os.Args[0])
	fmt.Fprintf(file, "  where:\n")
	fmt.Fprintf(file, "    c                       measure create+finalize of checkpoints\n")
	fmt.Fprintf(file, "    s                       measure snapshot set+clear on every 10th checkpoint\n")
	fmt.Fprintf(file, "    e                       measure enumeration of all checkpoints\n")
	fmt.Fprintf(file, "    d                       measure range delete of all checkpoints\n")
	fmt.Fprintf(file, "    checkpoints             number of checkpoints to work with\n")
	fmt.Fprintf(file, "    conf-file               input to conf.MakeConfMapFromFile()\n")
	fmt.Fprintf(file, "    [section.option=value]* optional input to conf.UpdateFromStrings()\n")
	fmt.Fprintf(file, "\n")
	fmt.Fprintf(file, "Note: The phases run in the order c, s, e, d; at least one must be selected\n")
	fmt.Fprintf(file, "      The conf-file must define the volume named by Workout.VolumeName\n")
}

func mustSucceed(step string, err error) {
	if nil != err {
		fmt.Fprintf(os.Stderr, "%v failed: %v\n", step, err)
		os.Exit(1)
	}
}

func reportPhase(phase string, ops uint64, elapsed time.Duration) {
	var (
		latencyPerOpInMilliSeconds float64
		opsPerSecond               float64
	)

	opsPerSecond = float64(ops) / (float64(elapsed) / float64(time.Second))
	latencyPerOpInMilliSeconds = (float64(elapsed) / float64(time.Millisecond)) / float64(ops)

	fmt.Printf("%-10v %10.2f ops/sec %8.3f ms/op\n", phase, opsPerSecond, latencyPerOpInMilliSeconds)
}

func main() {
	var (
		cno            uint64
		confMap        conf.ConfMap
		cpfileHandle   cpfile.Cpfile
		err            error
		ifile          mdt.File
		phaseStartTime time.Time
		root           *cpfile.Root
		selector       string
	)

	// Parse arguments

	if 4 > len(os.Args) {
		usage(os.Stderr)
		os.Exit(1)
	}

	selector = os.Args[1]
	for _, selectorChar := range selector {
		switch selectorChar {
		case 'c':
			doCreate = true
		case 's':
			doSnapshot = true
		case 'e':
			doEnumerate = true
		case 'd':
			doDelete = true
		default:
			fmt.Fprintf(os.Stderr, "unknown test selector: %c\n", selectorChar)
			usage(os.Stderr)
			os.Exit(1)
		}
	}
	if !doCreate && !doSnapshot && !doEnumerate && !doDelete {
		usage(os.Stderr)
		os.Exit(1)
	}

	_, err = fmt.Sscanf(os.Args[2], "%d", &checkpointsToWrite)
	if (nil != err) || (0 == checkpointsToWrite) {
		fmt.Fprintf(os.Stderr, "checkpoints must be a positive number\n")
		os.Exit(1)
	}

	confMap, err = conf.MakeConfMapFromFile(os.Args[3])
	mustSucceed("conf.MakeConfMapFromFile()", err)

	err = confMap.UpdateFromStrings(os.Args[4:])
	mustSucceed("confMap.UpdateFromStrings()", err)

	// Start up needed packages

	err = logger.Up(confMap)
	mustSucceed("logger.Up()", err)

	err = trackedlock.Up(confMap)
	mustSucceed("trackedlock.Up()", err)

	err = mdt.Up(confMap)
	mustSucceed("mdt.Up()", err)

	volumeName, err = confMap.FetchOptionValueString("Workout", "VolumeName")
	mustSucceed("confMap.FetchOptionValueString(\"Workout\", \"VolumeName\")", err)

	volumeHandle, err = mdt.FetchVolumeHandle(volumeName)
	mustSucceed("mdt.FetchVolumeHandle()", err)

	err = cpfile.Format(volumeHandle, cplayout.CheckpointSizeMin)
	mustSucceed("cpfile.Format()", err)

	cpfileHandle, err = cpfile.Read(volumeHandle, cplayout.CheckpointSizeMin,
		&cplayout.InodeV1Struct{Mode: cplayout.InodeModeRegularFile, LinksCount: 1})
	mustSucceed("cpfile.Read()", err)

	ifile, err = volumeHandle.FetchFile(cplayout.RootInodeNumber)
	mustSucceed("volumeHandle.FetchFile()", err)

	err = ifile.LoadInodeRecord(&cplayout.InodeV1Struct{Mode: cplayout.InodeModeRegularFile, LinksCount: 1})
	mustSucceed("ifile.LoadInodeRecord()", err)

	root = &cpfile.Root{Ifile: ifile}

	// Perform the selected phases

	if doCreate {
		phaseStartTime = time.Now()
		for i := uint64(0); i < checkpointsToWrite; i++ {
			cno = volumeHandle.ReserveCno()
			err = cpfileHandle.CreateCheckpoint(cno)
			mustSucceed("cpfileHandle.CreateCheckpoint()", err)
			err = cpfileHandle.FinalizeCheckpoint(cno, root, 1, uint64(time.Now().Unix()), false)
			mustSucceed("cpfileHandle.FinalizeCheckpoint()", err)
		}
		reportPhase("create", checkpointsToWrite, time.Since(phaseStartTime))
	}

	if doSnapshot {
		phaseStartTime = time.Now()
		snapshotOps := uint64(0)
		for cno = 10; cno < volumeHandle.Cno(); cno += 10 {
			err = cpfileHandle.ChangeCpmode(cno, cpfile.SnapshotMode)
			mustSucceed("cpfileHandle.ChangeCpmode(SnapshotMode)", err)
			err = cpfileHandle.ChangeCpmode(cno, cpfile.CheckpointMode)
			mustSucceed("cpfileHandle.ChangeCpmode(CheckpointMode)", err)
			snapshotOps += 2
		}
		if 0 == snapshotOps {
			fmt.Fprintf(os.Stderr, "snapshot phase needs at least 10 checkpoints\n")
			os.Exit(1)
		}
		reportPhase("snapshot", snapshotOps, time.Since(phaseStartTime))
	}

	if doEnumerate {
		phaseStartTime = time.Now()
		enumerated := uint64(0)
		ci := make([]cpfile.CpInfo, 64)
		cno = 1
		for {
			n, err := cpfileHandle.GetCpinfo(&cno, cpfile.CheckpointMode, ci)
			mustSucceed("cpfileHandle.GetCpinfo()", err)
			if 0 == n {
				break
			}
			enumerated += uint64(n)
		}
		reportPhase("enumerate", enumerated, time.Since(phaseStartTime))
	}

	if doDelete {
		phaseStartTime = time.Now()
		err = cpfileHandle.DeleteCheckpoints(1, volumeHandle.Cno())
		mustSucceed("cpfileHandle.DeleteCheckpoints()", err)
		reportPhase("delete", checkpointsToWrite, time.Since(phaseStartTime))
	}

	fmt.Printf("\n%v", bucketstats.SprintStats(bucketstats.StatFormatParsable1, "cpfile", volumeName))

	// Shut down

	err = cpfile.Down()
	mustSucceed("cpfile.Down()", err)

	err = mdt.Down()
	mustSucceed("mdt.Down()", err)

	err = trackedlock.Down()
	mustSucceed("trackedlock.Down()", err)

	err = logger.Down()
	mustSucceed("logger.Down()", err)
}
