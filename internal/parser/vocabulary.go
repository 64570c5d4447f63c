/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package parser

import (
	"context"
	"strings"
)

type argType int

const (
	argNone argType = iota
	argInt
	argString
	argPair
)

type handler func(l *Local, ctx context.Context, cmd *Command) int

type verb struct {
	keyword string
	unit    bool
	arg     argType
	run     handler
	help    string
}

const helpHeader = "melted -- A Multimedia Playout Server\n" +
	"\tCopyright (C) 2002-2015 Meltytech, LLC\n" +
	"\tAuthors:\n" +
	"\t\tDan Dennedy <dan@dennedy.org>\n" +
	"\t\tCharles Yates <charles.yates@pandora.be>\n" +
	"Available commands:\n"

// vocabulary is filled in init because the HELP handler reads it.
var vocabulary []verb

func init() {
	vocabulary = []verb{
		{"BYE", false, argNone, nil, "Terminates the session. Units are not removed and task queue is not flushed."},
		{"HELP", false, argNone, (*Local).help, "Display this information!"},
		{"NLS", false, argNone, (*Local).listServices, "List the consumer services the media engine offers."},
		{"UADD", false, argString, (*Local).addUnit, "Create a new playout unit (virtual VTR) to transmit to receiver specified in GUID argument."},
		{"ULS", false, argNone, (*Local).listUnits, "Lists the units that have already been added to the server."},
		{"CLS", false, argString, (*Local).listClips, "Lists the clips at directory name argument."},
		{"SET", false, argPair, (*Local).setGlobal, "Set a server configuration property."},
		{"GET", false, argString, (*Local).getGlobal, "Get a server configuration property."},
		{"RUN", false, argString, (*Local).run, "Run a batch file."},
		{"LIST", true, argNone, (*Local).list, "List the playlist associated to a unit."},
		{"LOAD", true, argString, (*Local).load, "Load clip specified in absolute filename argument."},
		{"INSERT", true, argString, (*Local).insert, "Insert a clip at the given clip index."},
		{"REMOVE", true, argNone, (*Local).remove, "Remove a clip at the given clip index."},
		{"CLEAN", true, argNone, (*Local).clean, "Clean a unit by removing all but the currently playing clip."},
		{"WIPE", true, argNone, (*Local).wipe, "Clean a unit by removing everything before the currently playing clip."},
		{"CLEAR", true, argNone, (*Local).clear, "Clear a unit by removing all clips."},
		{"MOVE", true, argInt, (*Local).move, "Move a clip to another clip index."},
		{"APND", true, argString, (*Local).appendClip, "Append a clip specified in absolute filename argument."},
		{"PLAY", true, argNone, (*Local).play, "Play a loaded clip at speed -2000 to 2000 where 1000 = normal forward speed."},
		{"STOP", true, argNone, (*Local).stop, "Stop a loaded and playing clip."},
		{"PAUSE", true, argNone, (*Local).pause, "Pause a playing clip."},
		{"REW", true, argNone, (*Local).rewind, "Rewind a unit. If stopped, seek to beginning of clip. If playing, play fast backwards."},
		{"FF", true, argNone, (*Local).fastForward, "Fast forward a unit. If stopped, seek to beginning of clip. If playing, play fast forwards."},
		{"STEP", true, argInt, (*Local).step, "Step argument number of frames forward or backward."},
		{"GOTO", true, argInt, (*Local).gotoFrame, "Jump to frame number supplied as argument."},
		{"SIN", true, argInt, (*Local).setIn, "Set the IN point of the loaded clip to frame number argument. -1 = reset in point to 0"},
		{"SOUT", true, argInt, (*Local).setOut, "Set the OUT point of the loaded clip to frame number argument. -1 = reset out point to maximum."},
		{"USTA", true, argNone, (*Local).unitStatus, "Report information about the unit."},
		{"USET", true, argPair, (*Local).setUnit, "Set a unit configuration property."},
		{"UGET", true, argString, (*Local).getUnit, "Get a unit configuration property."},
		{"XFER", true, argString, (*Local).transfer, "Transfer the unit's clip to another unit specified as argument."},
		{"SHUTDOWN", false, argNone, (*Local).shutdown, "Shutdown the server."},
	}
}

// lookup finds keyword case-insensitively. BYE is connection-level and
// never dispatched.
func lookup(keyword string) (verb, bool) {
	for _, v := range vocabulary[1:] {
		if strings.EqualFold(v.keyword, keyword) {
			return v, true
		}
	}
	return verb{}, false
}
