// SPDX-License-Identifier: AGPL-3.0-or-later

// Package policy classifies a raw msh command line as allowed or rejected
// before it is ever handed to the serial session.
package policy

import "strings"

// blockedVerbs are actuators and other destructive commands: never allowed,
// regardless of arguments.
var blockedVerbs = map[string]bool{
	"onkey": true, "offkey": true, "laser_en": true, "continuous": true,
	"pulse": true, "power": true, "laserdac": true, "drivedc": true,
	"pilot": true, "pilotdac": true, "piloti": true, "feederon": true,
	"feederoff": true, "feedermove": true, "outstart": true, "outstop": true,
	"instart": true, "instop": true, "writeio": true, "writeall": true,
	"reboot": true, "download": true, "chgboot": true, "setprocess": true,
	"applypro": true,
}

// safeGetters are read-only verbs, allowed with or without arguments.
var safeGetters = map[string]bool{
	"status": true, "worktime": true, "warning": true, "error": true,
	"lock": true, "mode": true, "state": true, "substatus": true,
	"getall": true, "cur_pro": true, "feeder_pro": true, "maxpower": true,
	"temp": true, "pres": true, "pressure": true, "version": true,
	"help": true, "free": true, "ps": true, "list_device": true,
}

// safeSettersRequireParams mutate device parameters and are only allowed
// when at least one argument is present. maxpower also appears in
// safeGetters, but this set is checked first: a bare "maxpower" is
// rejected for missing parameters, never falling through to the getter
// check below.
var safeSettersRequireParams = map[string]bool{
	"maxpower": true, "risetk": true, "falltk": true, "gaseatk": true,
	"gaslatk": true, "onwatk": true, "offwatk": true, "fan": true,
	"fanon": true, "fanduty": true, "fantemp": true, "intertimeout": true,
}

// normalizeVerb extracts the lowercase first whitespace-delimited token of
// cmd. Returns "" for an empty or whitespace-only command.
func normalizeVerb(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// IsAllowed classifies cmd, returning (true, "") if it may be forwarded to
// the device, or (false, reason) with a stable, human-meaningful reason.
// Pure function of cmd; no side effects.
func IsAllowed(cmd string) (bool, string) {
	c := strings.TrimSpace(cmd)
	if c == "" {
		return false, "empty command"
	}
	if strings.ContainsAny(cmd, "\n\r") {
		return false, "multiline commands not allowed"
	}
	if strings.Contains(c, ";") {
		return false, "semicolons not allowed"
	}

	verb := normalizeVerb(c)
	args := strings.Fields(c)[1:]

	if blockedVerbs[verb] {
		return false, "blocked verb: " + verb
	}

	if safeSettersRequireParams[verb] {
		if len(args) == 0 {
			return false, "missing parameters for setter: " + verb
		}
		return true, ""
	}

	if safeGetters[verb] {
		return true, ""
	}

	return false, "unknown/unaudited command: " + verb
}
