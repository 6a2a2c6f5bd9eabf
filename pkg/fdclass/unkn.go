package fdclass

import (
	"sort"
	"strconv"
	"strings"

	"github.com/fdscan/fdscan/pkg/columns"
)

// anonOps specializes the unknown class per anon_inode kind. Only the
// kinds the engine itself consumes are implemented; everything else stays
// a plain UNKN row.
type anonOps struct {
	class        string
	probe        func(name string) bool
	handleFdinfo func(c *unknContent, key, value string) bool
	attach       func(f *File, c *unknContent)
	fillColumn   func(f *File, c *unknContent, id columns.ColumnID) (string, FillResult)
}

type unknContent struct {
	ops  *anonOps
	tfds []int
}

const anonPrefix = "anon_inode:"

func anonName(name string) string {
	return strings.TrimPrefix(name, anonPrefix)
}

var eventpollOps = anonOps{
	class: "eventpoll",
	probe: func(name string) bool { return strings.HasPrefix(name, "[eventpoll]") },
	handleFdinfo: func(c *unknContent, key, value string) bool {
		if key != "tfd" {
			return false
		}
		// tfd lines look like "tfd: 5 events: 19 data: ...".
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return false
		}
		tfd, err := strconv.Atoi(fields[0])
		if err != nil {
			return false
		}
		c.tfds = append(c.tfds, tfd)
		return true
	},
	attach: func(f *File, c *unknContent) {
		if len(c.tfds) == 0 {
			return
		}
		sort.Ints(c.tfds)
		for _, tfd := range c.tfds {
			f.Proc.EpollTargets.Add(tfd)
		}
	},
	fillColumn: func(_ *File, c *unknContent, id columns.ColumnID) (string, FillResult) {
		if id != columns.ColEventpollTFDs || len(c.tfds) == 0 {
			return "", NotHandled
		}
		parts := make([]string, len(c.tfds))
		for i, tfd := range c.tfds {
			parts[i] = strconv.Itoa(tfd)
		}
		return strings.Join(parts, "\n"), Handled
	},
}

var anonOpsList = []*anonOps{&eventpollOps}

func initUnknContent(_ *Ctx, f *File) {
	c := &unknContent{}
	name := anonName(f.Name)
	for _, ops := range anonOpsList {
		if ops.probe(name) {
			c.ops = ops
			break
		}
	}
	f.Content = c
}

func unknHandleFdinfo(f *File, key, value string) bool {
	c, ok := f.Content.(*unknContent)
	if !ok || c.ops == nil || c.ops.handleFdinfo == nil {
		return false
	}
	return c.ops.handleFdinfo(c, key, value)
}

func unknAttach(f *File) {
	c, ok := f.Content.(*unknContent)
	if !ok || c.ops == nil || c.ops.attach == nil {
		return
	}
	c.ops.attach(f, c)
}

func unknFillColumn(_ *Ctx, _ *Process, f *File, id columns.ColumnID) (string, FillResult) {
	c, _ := f.Content.(*unknContent)
	switch id {
	case columns.ColType:
		if c != nil && c.ops != nil {
			return c.ops.class, Handled
		}
		return "UNKN", Handled
	case columns.ColSTType:
		return "UNKN", Handled
	default:
		if c != nil && c.ops != nil && c.ops.fillColumn != nil {
			return c.ops.fillColumn(f, c, id)
		}
		return "", NotHandled
	}
}

// UnknClass is the floor of classification: anything with an unrecognized
// file type, including anon_inode descriptors.
var UnknClass = Class{
	Name:              "unkn",
	Super:             &AbstClass,
	InitializeContent: initUnknContent,
	HandleFdinfo:      unknHandleFdinfo,
	AttachXinfo:       unknAttach,
	FillColumn:        unknFillColumn,
}
