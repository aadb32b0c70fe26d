package cdr

import (
	"fmt"
	"os"
	"strings"
	"time"

	"ForkGo/global"
)

var (
	pipe         chan map[Field]string
	fields       = getAllFields()
	stringfields = CastStringSlice(fields)
)

const (
	CDRFilename   string = "cdrs_current.txt"
	cdrBufferSize int    = 256
)

func init() {
	global.WtGrp.Add(1)
	pipe = make(chan map[Field]string, cdrBufferSize)
	if file, ok := prepareCdrFiles(); ok {
		go writeCDRs(file)
	}
}

func prepareCdrFiles() (*os.File, bool) {
	if info, err := os.Stat(CDRFilename); err == nil {
		modtm := info.ModTime().UTC().Format("20060102T150405")
		if err := os.Rename(CDRFilename, strings.Replace(CDRFilename, "current", modtm, 1)); err != nil {
			global.LogError(global.LTCDR, fmt.Sprint("error renaming existing CDR file: ", err))
			return nil, false
		}
	}

	file, err := os.OpenFile(CDRFilename, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		global.LogWarning(global.LTCDR, fmt.Sprint("error opening CDR file: ", err))
		return nil, false
	}

	return file, true
}

func writeCDRs(file *os.File) {
	defer global.WtGrp.Done()
	defer file.Close()
	defer file.Sync()
	defer close(pipe)

	writeLine := func(line string) {
		if _, err := fmt.Fprintln(file, line); err != nil {
			global.LogError(global.LTCDR, fmt.Sprint("error writing CDR line: ", err))
		}
	}

	writeLine(strings.Join(stringfields, ";"))

	for fieldsmap := range pipe {
		var sb strings.Builder
		for _, f := range fields {
			sb.WriteString(fieldsmap[f])
			sb.WriteString(";")
		}
		writeLine(sb.String()[:sb.Len()-1])
	}
}

// RecordFinished builds one CDR line for a fork that just finished.
// Kept free of any fork.ForkContext import so cdr stays a leaf package;
// the Router passes in the already-extracted fields.
func RecordFinished(forkID, callID, method, requestURI, variant string, branchCount, lateBranchCount int, finalStatusCode int, startedAt time.Time, wasCancelled, hitLateTimeout bool) {
	inst := New()
	inst.Set(ForkID, forkID)
	inst.Set(CallID, callID)
	inst.Set(RequestMethod, method)
	inst.Set(RequestURI, requestURI)
	inst.Set(BranchCount, fmt.Sprint(branchCount))
	inst.Set(LateBranchCount, fmt.Sprint(lateBranchCount))
	inst.Set(FinalStatusCode, fmt.Sprint(finalStatusCode))
	inst.Set(Variant, variant)
	now := time.Now()
	inst.Set(StartTime, startedAt.UTC().Format(time.RFC3339))
	inst.Set(EndTime, now.UTC().Format(time.RFC3339))
	inst.Set(DurationMillis, fmt.Sprint(now.Sub(startedAt).Milliseconds()))
	inst.Set(WasCancelled, fmt.Sprint(wasCancelled))
	inst.Set(HitLateTimeout, fmt.Sprint(hitLateTimeout))
	inst.Flush()
}
