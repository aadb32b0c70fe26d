package global

import "strconv"

// Str2IntDefaultMinMax parses s as an int bounded to [minlmt,maxlmt],
// falling back to d on a parse error or out-of-range value. Used for
// env-var driven startup options (the SIP UDP port and the HTTP port).
func Str2IntDefaultMinMax(s string, d, minlmt, maxlmt int) (int, bool) {
	out, err := strconv.Atoi(s)
	if err != nil {
		return d, false
	}
	if out < minlmt || out > maxlmt {
		return d, false
	}
	return out, true
}
