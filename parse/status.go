// SPDX-License-Identifier: AGPL-3.0-or-later

// Package parse turns the semi-structured text a msh shell prints back into
// typed, sparse records. All three parsers here are pure functions: given
// the same input text they always produce the same output, and a field
// that the device didn't emit this time is simply absent from the result
// rather than an error.
package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// PowerOut is the "Power Out: pct% (w w),DAC(d),state(s)" line.
type PowerOut struct {
	Pct   float64
	W     int
	DAC   int
	State string
}

// PowerParam is the "Power Param: power(f),pwm_fre(i),pwm_duty(i)" line.
type PowerParam struct {
	Power   float64
	PWMFre  int
	PWMDuty int
}

// PowerDrive is the "Power drive: f V, f A" line.
type PowerDrive struct {
	V float64
	A float64
}

// Energy is the "Energy: state(i),(j J),DAC(d)" line.
type Energy struct {
	State int
	J     int
	DAC   int
}

// Pilot is the "Pilot State: f mA,ADC(i),DAC(i),(onoff),mode(i)" line.
type Pilot struct {
	MA    float64
	ADC   int
	DAC   int
	OnOff string
	Mode  int
}

// PD is the "PD Voltage: f mV,ADC(i)" line.
type PD struct {
	MV  float64
	ADC int
}

// NTCReading is one "fC,ADC(i)" pair out of the NTC1~4 / NTC5~8 lines.
type NTCReading struct {
	C   float64
	ADC int
}

// ADCValue is a scalar-plus-ADC-channel reading (Pressure, AirHR).
type ADCValue struct {
	Value float64
	ADC   int
}

// AirT is the "AirT: fC,ADC(i)" line.
type AirT struct {
	ValueC float64
	ADC    int
}

// Env is the combined environmental summary folded from the "Temp ... Pres
// ... KPa" and "Dew" lines. Missing components become NaN, but Env is
// emitted whenever at least one of the two source lines is present.
type Env struct {
	TempC   float64
	PresKPa float64
	Dew     float64
}

// MaskText is a hex mask plus free-form text, for WARNING/ERROR/LOCK.
type MaskText struct {
	Mask string
	Text string
}

// Status is the sparse parsed record for a "status" exec. Every field is
// optional: absence means the device didn't print that line this sample.
type Status struct {
	PowerOnTime  *string
	RTCTime      *string
	WorkMode     *string
	WorkState    *string
	LaserState   *string
	PulseOn      *int
	PulseOff     *int
	WaveState    *int
	IOFlags      map[string]int
	PowerOut     *PowerOut
	PowerParam   *PowerParam
	PowerDrive   *PowerDrive
	DriveVolt    []float64
	DriveCurrent []float64
	Energy       *Energy
	Pilot        *Pilot
	PD           *PD
	NTC          []NTCReading
	Pressure     *ADCValue
	AirHR        *ADCValue
	AirT         *AirT
	Env          *Env
	Warning      *MaskText
	Error        *MaskText
	Lock         *MaskText
	TEM          *int
}

var (
	rePowerOnTime = regexp.MustCompile(`(?m)^Power-ON time:\s*(.+)$`)
	reRTCTime     = regexp.MustCompile(`(?m)^RTC time:\s*(.+)$`)
	reWorkMode    = regexp.MustCompile(`(?m)^Work Mode:\s*(.+)$`)
	reWorkState   = regexp.MustCompile(`(?m)^Work State:\s*(.+)$`)
	reLaserState  = regexp.MustCompile(`(?m)^laser State:\s*(.+)$`)
	rePulseOn     = regexp.MustCompile(`(?m)^pulse_on:\s*(\d+)\s*(?:[A-Za-z]+)?\s*$`)
	rePulseOff    = regexp.MustCompile(`(?m)^pulse_off:\s*(\d+)\s*(?:[A-Za-z]+)?\s*$`)
	reWaveState   = regexp.MustCompile(`(?m)^wave\s+state:\s*(\d+)\s*$`)
	reIOState     = regexp.MustCompile(`(?m)^IO state:\s*(.+)$`)
	reIOFlag      = regexp.MustCompile(`([A-Z0-9_]+)\((\d+)\)`)
	rePowerOut    = regexp.MustCompile(`(?m)^Power Out:\s*([0-9.]+)%.*?\(\s*([0-9]+)\s*w\),DAC\((\d+)\),state\((\w+)\)\s*$`)
	rePowerParam  = regexp.MustCompile(`(?m)^Power Param:\s*power\(([-+]?\d+(?:\.\d+)?)\),pwm_fre\((\d+)\),pwm_duty\((\d+)\)\s*$`)
	rePowerDrive  = regexp.MustCompile(`(?m)^Power drive:\s*([-+]?\d+(?:\.\d+)?)\s*V,\s*([-+]?\d+(?:\.\d+)?)\s*A\s*$`)
	reDriveVolt   = regexp.MustCompile(`(?m)^Drive volt1~2:\s*(.+)$`)
	reDriveCurr   = regexp.MustCompile(`(?m)^Drive current1~4:\s*(.+)$`)
	reFloatTok    = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
	reEnergy      = regexp.MustCompile(`(?m)^Energy:\s*state\((\d+)\),\((\d+)\s*J\),DAC\((\d+)\)\s*$`)
	rePilot       = regexp.MustCompile(`(?m)^Pilot State:\s*([0-9.]+)mA,ADC\((\d+)\),\s*DAC\((\d+)\),\s*\((\w+)\),\s*mode\((\d+)\)\s*$`)
	rePD          = regexp.MustCompile(`(?m)^PD Voltage:\s*([0-9.]+)mV,ADC\((\d+)\)\s*$`)
	reNTCLine1    = regexp.MustCompile(`(?m)^NTC1~4:\s*(.+)$`)
	reNTCLine2    = regexp.MustCompile(`(?m)^NTC5~8:\s*(.+)$`)
	reNTCPair     = regexp.MustCompile(`([-+]?\d+(?:\.\d+)?)C,ADC\((\d+)\)`)
	rePressure    = regexp.MustCompile(`(?m)^Pressure:\s*([0-9.]+),ADC\((\d+)\)\s*$`)
	reAirHR       = regexp.MustCompile(`(?m)^AirHR:\s*([0-9.]+)%?,ADC\((\d+)\)\s*$`)
	reAirT        = regexp.MustCompile(`(?m)^AirT:\s*([0-9.]+)C,ADC\((\d+)\)\s*$`)
	reEnvTempPres = regexp.MustCompile(`(?m)^Temp:\s*([0-9.]+)\s*C\s*Pres:\s*([0-9.]+)\s*KPa\s*$`)
	reDew         = regexp.MustCompile(`(?m)^Dew:\s*([0-9.]+)\s*$`)
	reWarning     = regexp.MustCompile(`(?m)^WARNING\((0x[0-9A-Fa-f]+)\):\s*(.*)\s*$`)
	reError       = regexp.MustCompile(`(?m)^ERROR\((0x[0-9A-Fa-f]+)\):\s*(.*)\s*$`)
	reLock        = regexp.MustCompile(`(?m)^LOCK\((0x[0-9A-Fa-f]+)\):\s*(.*)\s*$`)
	reTEM         = regexp.MustCompile(`(?m)^TEM:(\d+)\s*$`)
)

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseNTCPairs(line string) []NTCReading {
	matches := reNTCPair.FindAllStringSubmatch(line, -1)
	out := make([]NTCReading, 0, len(matches))
	for _, m := range matches {
		out = append(out, NTCReading{C: atof(m[1]), ADC: atoi(m[2])})
	}
	return out
}

func floatList(re *regexp.Regexp, text string) ([]float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	toks := reFloatTok.FindAllString(m[1], -1)
	out := make([]float64, 0, len(toks))
	for _, t := range toks {
		out = append(out, atof(t))
	}
	return out, true
}

// ParseStatus parses the textual output of a "status" exec into a sparse
// Status record. Unrecognized or malformed lines are silently elided;
// there is no hard failure mode.
func ParseStatus(text string) Status {
	text = strings.ReplaceAll(text, "\r", "")
	var out Status

	if m := rePowerOnTime.FindStringSubmatch(text); m != nil {
		out.PowerOnTime = strp(strings.TrimSpace(m[1]))
	}
	if m := reRTCTime.FindStringSubmatch(text); m != nil {
		out.RTCTime = strp(strings.TrimSpace(m[1]))
	}
	if m := reWorkMode.FindStringSubmatch(text); m != nil {
		out.WorkMode = strp(strings.TrimSpace(m[1]))
	}
	if m := reWorkState.FindStringSubmatch(text); m != nil {
		out.WorkState = strp(strings.TrimSpace(m[1]))
	}
	if m := reLaserState.FindStringSubmatch(text); m != nil {
		out.LaserState = strp(strings.TrimSpace(m[1]))
	}
	if m := rePulseOn.FindStringSubmatch(text); m != nil {
		out.PulseOn = intp(atoi(m[1]))
	}
	if m := rePulseOff.FindStringSubmatch(text); m != nil {
		out.PulseOff = intp(atoi(m[1]))
	}
	if m := reWaveState.FindStringSubmatch(text); m != nil {
		out.WaveState = intp(atoi(m[1]))
	}
	if m := reIOState.FindStringSubmatch(text); m != nil {
		flags := make(map[string]int)
		for _, pair := range reIOFlag.FindAllStringSubmatch(m[1], -1) {
			flags[pair[1]] = atoi(pair[2])
		}
		out.IOFlags = flags
	}
	if m := rePowerOut.FindStringSubmatch(text); m != nil {
		out.PowerOut = &PowerOut{
			Pct:   atof(m[1]),
			W:     atoi(m[2]),
			DAC:   atoi(m[3]),
			State: m[4],
		}
	}
	if m := rePowerParam.FindStringSubmatch(text); m != nil {
		out.PowerParam = &PowerParam{
			Power:   atof(m[1]),
			PWMFre:  atoi(m[2]),
			PWMDuty: atoi(m[3]),
		}
	}
	if m := rePowerDrive.FindStringSubmatch(text); m != nil {
		out.PowerDrive = &PowerDrive{V: atof(m[1]), A: atof(m[2])}
	}
	if volts, ok := floatList(reDriveVolt, text); ok {
		if len(volts) > 2 {
			volts = volts[:2]
		}
		out.DriveVolt = volts
	}
	if currents, ok := floatList(reDriveCurr, text); ok {
		if len(currents) > 4 {
			currents = currents[:4]
		}
		out.DriveCurrent = currents
	}
	if m := reEnergy.FindStringSubmatch(text); m != nil {
		out.Energy = &Energy{State: atoi(m[1]), J: atoi(m[2]), DAC: atoi(m[3])}
	}
	if m := rePilot.FindStringSubmatch(text); m != nil {
		out.Pilot = &Pilot{
			MA:    atof(m[1]),
			ADC:   atoi(m[2]),
			DAC:   atoi(m[3]),
			OnOff: m[4],
			Mode:  atoi(m[5]),
		}
	}
	if m := rePD.FindStringSubmatch(text); m != nil {
		out.PD = &PD{MV: atof(m[1]), ADC: atoi(m[2])}
	}

	var ntc []NTCReading
	if m := reNTCLine1.FindStringSubmatch(text); m != nil {
		ntc = append(ntc, parseNTCPairs(m[1])...)
	}
	if m := reNTCLine2.FindStringSubmatch(text); m != nil {
		ntc = append(ntc, parseNTCPairs(m[1])...)
	}
	if len(ntc) > 0 {
		out.NTC = ntc
	}

	if m := rePressure.FindStringSubmatch(text); m != nil {
		out.Pressure = &ADCValue{Value: atof(m[1]), ADC: atoi(m[2])}
	}
	if m := reAirHR.FindStringSubmatch(text); m != nil {
		out.AirHR = &ADCValue{Value: atof(m[1]), ADC: atoi(m[2])}
	}
	if m := reAirT.FindStringSubmatch(text); m != nil {
		out.AirT = &AirT{ValueC: atof(m[1]), ADC: atoi(m[2])}
	}

	tempPres := reEnvTempPres.FindStringSubmatch(text)
	dew := reDew.FindStringSubmatch(text)
	if tempPres != nil || dew != nil {
		env := Env{TempC: math.NaN(), PresKPa: math.NaN(), Dew: math.NaN()}
		if tempPres != nil {
			env.TempC = atof(tempPres[1])
			env.PresKPa = atof(tempPres[2])
		}
		if dew != nil {
			env.Dew = atof(dew[1])
		}
		out.Env = &env
	}

	if m := reWarning.FindStringSubmatch(text); m != nil {
		out.Warning = &MaskText{Mask: m[1], Text: strings.TrimSpace(m[2])}
	}
	if m := reError.FindStringSubmatch(text); m != nil {
		out.Error = &MaskText{Mask: m[1], Text: strings.TrimSpace(m[2])}
	}
	if m := reLock.FindStringSubmatch(text); m != nil {
		out.Lock = &MaskText{Mask: m[1], Text: strings.TrimSpace(m[2])}
	}
	if m := reTEM.FindStringSubmatch(text); m != nil {
		out.TEM = intp(atoi(m[1]))
	}

	return out
}
