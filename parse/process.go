// SPDX-License-Identifier: AGPL-3.0-or-later

package parse

import (
	"strconv"
	"strings"
)

// ExtraKV is one unrecognized "key: value" line, preserved verbatim.
type ExtraKV struct {
	Key   string
	Value string
}

// Process is the sparse parsed record for a "cur_pro"/"feeder_pro" exec.
// Every numeric field is optional; Extras collects any line whose leading
// phrase wasn't recognized, in the order it was seen.
type Process struct {
	Power         *float64
	PWMFre        *int
	PWMDuty       *int
	Mode          *int
	HeadMode      *int
	HeadFre       *int
	HeadWidth     *int
	PulseOn       *int
	PulseOff      *int
	GasEarly      *int
	GasDelay      *int
	PowRise       *int
	PowFall       *int
	PowEarly      *int
	PowDelay      *int
	PowerOn       *int
	PowerOff      *int
	Index         *int
	FeederMode    *int
	FeederOutSpd  *int
	FeederOutLen  *int
	FeederInSpd   *int
	FeederInLen   *int
	FeederCycle   *int
	Smoothness    *int
	FeederOutDely *int
	FeederInDely  *int
	Extras        []ExtraKV
}

// parseNum mirrors the source's _parse_num: an integral string parses to
// int, a fractional string to float; a float that happens to be integral
// collapses to int so "100.0" and "100" parse identically.
func parseNum(value string) (f float64, isInt bool, ok bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, false, false
	}
	if strings.Contains(v, ".") {
		fv, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false, false
		}
		if fv == float64(int64(fv)) {
			return fv, true, true
		}
		return fv, false, true
	}
	iv, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, false
	}
	return float64(iv), true, true
}

func setInt(dst **int, value string) {
	f, isInt, ok := parseNum(value)
	if !ok || !isInt {
		return
	}
	v := int(f)
	*dst = &v
}

func setNum(dst **float64, value string) {
	f, _, ok := parseNum(value)
	if !ok {
		return
	}
	*dst = &f
}

func splitKV(line string) (ExtraKV, bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return ExtraKV{}, false
	}
	return ExtraKV{
		Key:   strings.TrimSpace(line[:idx]),
		Value: strings.TrimSpace(line[idx+1:]),
	}, true
}

func commaParts(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, p)
	}
	return out
}

func kvPart(part string) (k, v string, ok bool) {
	idx := strings.Index(part, ":")
	if idx < 0 {
		return "", "", false
	}
	return strings.ToLower(strings.TrimSpace(part[:idx])), strings.TrimSpace(part[idx+1:]), true
}

// ParseProcess parses the textual output of a "cur_pro"/"feeder_pro" exec
// into a sparse Process record. Lines are dispatched on their leading
// lowercase phrase; anything unrecognized but still "key: value"-shaped is
// preserved verbatim in Extras.
func ParseProcess(text string) Process {
	text = strings.ReplaceAll(text, "\r", "")
	var out Process

	for _, raw := range strings.Split(text, "\n") {
		s := strings.TrimSpace(raw)
		if s == "" || s == "msh >" {
			continue
		}
		lower := strings.ToLower(s)

		switch {
		case strings.HasPrefix(lower, "power:") && strings.Contains(s, ","):
			for _, part := range commaParts(s) {
				k, v, ok := kvPart(part)
				if !ok {
					continue
				}
				switch k {
				case "power":
					setNum(&out.Power, v)
				case "fre":
					setInt(&out.PWMFre, v)
				case "duty":
					setInt(&out.PWMDuty, v)
				case "mode":
					setInt(&out.Mode, v)
				}
			}
			continue

		case strings.HasPrefix(lower, "head mode:"):
			rest := s[strings.Index(s, ":")+1:]
			var parts []string
			for _, p := range strings.Split(rest, ",") {
				p = strings.TrimSpace(p)
				if p != "" {
					parts = append(parts, p)
				}
			}
			if len(parts) > 0 {
				setInt(&out.HeadMode, parts[0])
				for _, part := range parts[1:] {
					k, v, ok := kvPart(part)
					if !ok {
						continue
					}
					switch k {
					case "fre":
						setInt(&out.HeadFre, v)
					case "width":
						setInt(&out.HeadWidth, v)
					}
				}
			}
			continue

		case strings.HasPrefix(lower, "pulse tick"):
			rest := strings.TrimSpace(s[len("pulse tick"):])
			rest = strings.TrimPrefix(rest, ":")
			rest = strings.TrimSpace(rest)
			for _, part := range commaParts(rest) {
				k, v, ok := kvPart(part)
				if !ok {
					continue
				}
				switch k {
				case "on":
					setInt(&out.PulseOn, v)
				case "off":
					setInt(&out.PulseOff, v)
				}
			}
			continue

		case strings.HasPrefix(lower, "gas tick"):
			rest := strings.TrimSpace(s[len("gas tick"):])
			rest = strings.TrimPrefix(rest, ":")
			rest = strings.TrimSpace(rest)
			for _, part := range commaParts(rest) {
				k, v, ok := kvPart(part)
				if !ok {
					continue
				}
				switch k {
				case "early":
					setInt(&out.GasEarly, v)
				case "delay":
					setInt(&out.GasDelay, v)
				}
			}
			continue

		case strings.HasPrefix(lower, "power tick"):
			rest := strings.TrimSpace(s[len("power tick"):])
			rest = strings.TrimPrefix(rest, ":")
			rest = strings.TrimSpace(rest)
			for _, part := range commaParts(rest) {
				k, v, ok := kvPart(part)
				if !ok {
					continue
				}
				switch k {
				case "rise":
					setInt(&out.PowRise, v)
				case "fall":
					setInt(&out.PowFall, v)
				case "early":
					setInt(&out.PowEarly, v)
				case "delay":
					setInt(&out.PowDelay, v)
				}
			}
			continue

		case strings.HasPrefix(lower, "power on"):
			for _, part := range commaParts(s) {
				idx := strings.Index(part, ":")
				if idx < 0 {
					continue
				}
				k := strings.ToLower(strings.TrimSpace(part[:idx]))
				v := strings.TrimSpace(part[idx+1:])
				switch k {
				case "power on":
					setInt(&out.PowerOn, v)
				case "power off":
					setInt(&out.PowerOff, v)
				}
			}
			continue

		case strings.HasPrefix(lower, "process index:"):
			_, v, _ := strings.Cut(s, ":")
			setInt(&out.Index, v)
			continue

		case strings.HasPrefix(lower, "feeder_mode:"):
			expectOutLen := false
			expectInLen := false
			for _, part := range commaParts(s) {
				k, v, ok := kvPart(part)
				if !ok {
					continue
				}
				switch k {
				case "feeder_mode":
					setInt(&out.FeederMode, v)
				case "out_speed":
					setInt(&out.FeederOutSpd, v)
					expectOutLen, expectInLen = true, false
				case "in_speed":
					setInt(&out.FeederInSpd, v)
					expectInLen, expectOutLen = true, false
				case "len":
					if expectOutLen {
						setInt(&out.FeederOutLen, v)
						expectOutLen = false
					} else if expectInLen {
						setInt(&out.FeederInLen, v)
						expectInLen = false
					}
				}
			}
			continue

		case strings.HasPrefix(lower, "feeder_cycle:") || strings.HasPrefix(lower, "smoothness:"):
			for _, part := range commaParts(s) {
				k, v, ok := kvPart(part)
				if !ok {
					continue
				}
				switch k {
				case "feeder_cycle":
					setInt(&out.FeederCycle, v)
				case "smoothness":
					setInt(&out.Smoothness, v)
				case "out_delay":
					setInt(&out.FeederOutDely, v)
				case "in_delay":
					setInt(&out.FeederInDely, v)
				case "out_len":
					setInt(&out.FeederOutLen, v)
				case "in_len":
					setInt(&out.FeederInLen, v)
				}
			}
			continue
		}

		if kv, ok := splitKV(s); ok {
			out.Extras = append(out.Extras, kv)
		}
	}

	return out
}
