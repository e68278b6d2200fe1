package main

import (
	"fmt"
	"strconv"
	"strings"
)

// remoteVocabulary is the tag set accepted on the remote channel (HTTP /control).
var remoteVocabulary = []string{
	"play",
	"pause_resume",
	"next",
	"previous",
	"stop",
	"fullscreen",
	"mute_unmute",
	"exit",
	"aspect_ratio",
}

// ParseRemoteCommand maps a remote tag onto its event. Tags outside the
// vocabulary return *UnknownCommandError; callers log and drop those.
func ParseRemoteCommand(tag string) (Event, error) {
	tag = strings.TrimSpace(tag)
	for _, known := range remoteVocabulary {
		if tag == known {
			return simpleEvents[tag], nil
		}
	}
	return nil, &UnknownCommandError{Tag: tag}
}

// ParseLocalCommand parses a local UI command line such as ["next"],
// ["load", "2"], ["set_aspect_ratio", "4:3"] or ["minimize-window"].
// The local UI has a wider vocabulary than the remote channel.
func ParseLocalCommand(args []string) (Event, error) {
	if len(args) == 0 {
		return nil, &UnknownCommandError{}
	}
	name := strings.TrimSpace(args[0])

	if ev, ok := simpleEvents[name]; ok {
		return ev, nil
	}
	if op := WindowOp(name); op.Valid() {
		return WindowCommand{Op: op}, nil
	}

	switch name {
	case "load", "remove":
		if len(args) < 2 {
			return nil, fmt.Errorf("%s requires an index", name)
		}
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("%s: invalid index %q", name, args[1])
		}
		if name == "load" {
			return Load{Index: idx}, nil
		}
		return RemoveMedia{Index: idx}, nil
	case "set_aspect_ratio":
		if len(args) < 2 {
			return nil, fmt.Errorf("%s requires a mode", name)
		}
		return SetAspectRatio{Mode: args[1]}, nil
	}

	return nil, &UnknownCommandError{Tag: name}
}
