package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestUpdateFromString(t *testing.T) {
	confMap := MakeConfMap()

	err := confMap.UpdateFromString("Scrubber.VioPoolCapacity=4")
	if nil != err {
		t.Fatalf("UpdateFromString() failed: %v", err)
	}

	err = confMap.UpdateFromString("Scrubber.Queues=high, normal")
	if nil != err {
		t.Fatalf("UpdateFromString() failed: %v", err)
	}

	poolCapacity, err := confMap.FetchOptionValueUint64("Scrubber", "VioPoolCapacity")
	if nil != err {
		t.Fatalf("FetchOptionValueUint64() failed: %v", err)
	}
	if 4 != poolCapacity {
		t.Errorf("FetchOptionValueUint64() returned %v, expected 4", poolCapacity)
	}

	queues, err := confMap.FetchOptionValueStringSlice("Scrubber", "Queues")
	if nil != err {
		t.Fatalf("FetchOptionValueStringSlice() failed: %v", err)
	}
	if (2 != len(queues)) || ("high" != queues[0]) || ("normal" != queues[1]) {
		t.Errorf("FetchOptionValueStringSlice() returned %v", queues)
	}
}

func TestUpdateFromStringFailures(t *testing.T) {
	confMap := MakeConfMap()

	for _, badConfString := range []string{
		"NoEqualsSign",
		"NoSectionDotOption=1",
		".EmptySection=1",
		"EmptyOption.=1",
	} {
		err := confMap.UpdateFromString(badConfString)
		if nil == err {
			t.Errorf("UpdateFromString(\"%v\") unexpectedly succeeded", badConfString)
		}
	}
}

func TestUpdateFromFile(t *testing.T) {
	confFileContents := `
# Recovery domain settings
[RecoveryDomain]
DevicePath    = /dev/vdo0 ; device under recovery
BlockSize     = 4096
SlabCount     = 16
ScrubInterval = 250ms

[Logging]
TraceLevelLogging = scrubber, viopool
LogToConsole      = false
`

	confFilePath := filepath.Join(t.TempDir(), "recoveryd.conf")
	err := os.WriteFile(confFilePath, []byte(confFileContents), 0o644)
	if nil != err {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}

	confMap, err := MakeConfMapFromFile(confFilePath)
	if nil != err {
		t.Fatalf("MakeConfMapFromFile() failed: %v", err)
	}

	devicePath, err := confMap.FetchOptionValueString("RecoveryDomain", "DevicePath")
	if nil != err {
		t.Fatalf("FetchOptionValueString() failed: %v", err)
	}
	if "/dev/vdo0" != devicePath {
		t.Errorf("DevicePath came back as %v", devicePath)
	}

	blockSize, err := confMap.FetchOptionValueUint32("RecoveryDomain", "BlockSize")
	if nil != err {
		t.Fatalf("FetchOptionValueUint32() failed: %v", err)
	}
	if 4096 != blockSize {
		t.Errorf("BlockSize came back as %v", blockSize)
	}

	scrubInterval, err := confMap.FetchOptionValueDuration("RecoveryDomain", "ScrubInterval")
	if nil != err {
		t.Fatalf("FetchOptionValueDuration() failed: %v", err)
	}
	if 250*time.Millisecond != scrubInterval {
		t.Errorf("ScrubInterval came back as %v", scrubInterval)
	}

	traceSettings, err := confMap.FetchOptionValueStringSlice("Logging", "TraceLevelLogging")
	if nil != err {
		t.Fatalf("FetchOptionValueStringSlice() failed: %v", err)
	}
	if (2 != len(traceSettings)) || ("scrubber" != traceSettings[0]) || ("viopool" != traceSettings[1]) {
		t.Errorf("TraceLevelLogging came back as %v", traceSettings)
	}

	logToConsole, err := confMap.FetchOptionValueBool("Logging", "LogToConsole")
	if nil != err {
		t.Fatalf("FetchOptionValueBool() failed: %v", err)
	}
	if logToConsole {
		t.Errorf("LogToConsole came back as true")
	}
}

func TestCommandLineOverride(t *testing.T) {
	confMap, err := MakeConfMapFromStrings([]string{
		"RecoveryDomain.SlabCount=16",
		"RecoveryDomain.VioPoolCapacity=2",
	})
	if nil != err {
		t.Fatalf("MakeConfMapFromStrings() failed: %v", err)
	}

	err = confMap.UpdateFromString("RecoveryDomain.SlabCount=32")
	if nil != err {
		t.Fatalf("UpdateFromString() failed: %v", err)
	}

	slabCount, err := confMap.FetchOptionValueUint64("RecoveryDomain", "SlabCount")
	if nil != err {
		t.Fatalf("FetchOptionValueUint64() failed: %v", err)
	}
	if 32 != slabCount {
		t.Errorf("SlabCount came back as %v, expected the overridden 32", slabCount)
	}
}

func TestFetchFailures(t *testing.T) {
	confMap, err := MakeConfMapFromStrings([]string{
		"Section.NotANumber=fred",
		"Section.TooBig=65536",
		"Section.Multi=a,b",
	})
	if nil != err {
		t.Fatalf("MakeConfMapFromStrings() failed: %v", err)
	}

	_, err = confMap.FetchOptionValueString("MissingSection", "Whatever")
	if nil == err {
		t.Errorf("FetchOptionValueString() on a missing section unexpectedly succeeded")
	}

	_, err = confMap.FetchOptionValueString("Section", "MissingOption")
	if nil == err {
		t.Errorf("FetchOptionValueString() on a missing option unexpectedly succeeded")
	}

	_, err = confMap.FetchOptionValueUint64("Section", "NotANumber")
	if nil == err {
		t.Errorf("FetchOptionValueUint64() on a non-number unexpectedly succeeded")
	}

	_, err = confMap.FetchOptionValueUint16("Section", "TooBig")
	if nil == err {
		t.Errorf("FetchOptionValueUint16() on an out-of-range value unexpectedly succeeded")
	}

	_, err = confMap.FetchOptionValueString("Section", "Multi")
	if nil == err {
		t.Errorf("FetchOptionValueString() on a multi-valued option unexpectedly succeeded")
	}
}
