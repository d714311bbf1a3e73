package server

import (
	"fmt"
	"strings"
)

// Tag is the request type carried by a package.
type Tag uint32

const (
	TagAdd Tag = iota + 1
	TagDel
	TagInfo
	TagNodeByName
	TagKids
	TagMount
	TagUnmount

	// TagErr marks a failed response. Its body is always empty.
	TagErr Tag = 0xffffffff
)

var tagNames = map[Tag]string{
	TagAdd:        "ADD",
	TagDel:        "DEL",
	TagInfo:       "INFO",
	TagNodeByName: "NODE_BY_NAME",
	TagKids:       "KIDS",
	TagMount:      "MOUNT",
	TagUnmount:    "UNMOUNT",
	TagErr:        "ERR",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("TAG(%d)", uint32(t))
}

// ParseTag maps a tag name, in any case, to its value.
func ParseTag(name string) (Tag, bool) {
	for t, s := range tagNames {
		if t != TagErr && strings.EqualFold(s, name) {
			return t, true
		}
	}
	return 0, false
}

// Package is one request as it arrives at the mailbox. PID is the sender's
// process id; ID is echoed in the response.
type Package struct {
	ID   uint32
	PID  int32
	Type Tag
	Body []byte
}

// Response answers one Package. On failure Type is TagErr, Body is empty
// and Errno holds the positive errno.
type Response struct {
	ID    uint32
	Type  Tag
	Body  []byte
	Errno int64
}

func (r Response) OK() bool {
	return r.Type != TagErr
}
