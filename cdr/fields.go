package cdr

import "fmt"

type (
	Field string

	Instance struct {
		data map[Field]string
	}
)

const (
	ForkID           Field = "forkId"           // ForkContext.ID
	CallID           Field = "callId"           // incoming request's Call-ID
	RequestMethod    Field = "requestMethod"    // INVITE, MESSAGE, ...
	RequestURI       Field = "requestUri"       // incoming request's target
	BranchCount      Field = "branchCount"      // number of branches attempted
	LateBranchCount  Field = "lateBranchCount"  // branches added after initial fan-out
	FinalStatusCode  Field = "finalStatusCode"  // status code last forwarded upstream
	Variant          Field = "variant"          // invite, message, basic
	StartTime        Field = "startTime"
	EndTime          Field = "endTime"
	DurationMillis   Field = "durationMillis"
	WasCancelled     Field = "wasCancelled"
	HitLateTimeout   Field = "hitLateTimeout"
)

func getAllFields() []Field {
	return []Field{
		ForkID,
		CallID,
		RequestMethod,
		RequestURI,
		BranchCount,
		LateBranchCount,
		FinalStatusCode,
		Variant,
		StartTime,
		EndTime,
		DurationMillis,
		WasCancelled,
		HitLateTimeout,
	}
}

func (f Field) String() string {
	return string(f)
}

func CastStringSlice[T fmt.Stringer](input []T) []string {
	output := make([]string, len(input))
	for i, v := range input {
		output[i] = v.String()
	}
	return output
}

func New() *Instance {
	return &Instance{
		data: make(map[Field]string, len(stringfields)),
	}
}

func (inst *Instance) Set(field Field, value string) {
	inst.data[field] = value
}

func (inst *Instance) Flush() {
	pipe <- inst.data
}
