package entries

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/xen-troops/rouge/internal/config"
	"github.com/xen-troops/rouge/internal/gpt"
	"github.com/xen-troops/rouge/internal/sizes"
)

// partition binds one child entry to its place in the partition table.
type partition struct {
	label   string
	gptType uuid.UUID
	gptGUID uuid.UUID
	mbrType byte
	entry   Entry
	loc     config.Location
}

// gptEntry is the composite entry: a GUID partition table whose partitions
// are themselves entries. A partition may contain another gptEntry, which is
// how nested disk images compose.
type gptEntry struct {
	partitions []partition
	opts       gpt.Options
	requested  int64
	loc        config.Location

	finalized bool
	placed    []gpt.Placed
	total     int64
}

func newGPT(f *Factory, node *config.Node) (Entry, error) {
	partsNode, err := node.Get("partitions")
	if err != nil {
		return nil, err
	}
	if partsNode == nil {
		return nil, config.NewError(node.Location(), "can't find 'partitions' entry")
	}
	pairs, err := partsNode.Pairs()
	if err != nil {
		return nil, err
	}

	e := &gptEntry{opts: f.layoutOptions(), loc: node.Location()}
	e.opts.SectorSize, err = node.GetInt("sector_size", gpt.DefaultSectorSize)
	if err != nil {
		return nil, err
	}
	e.opts.HybridMBR, err = node.GetBool("hybrid_mbr", false)
	if err != nil {
		return nil, err
	}
	e.requested, err = parseSizeField(node, "size")
	if err != nil {
		return nil, err
	}

	for _, pair := range pairs {
		part, err := f.newPartition(pair)
		if err != nil {
			return nil, err
		}
		e.partitions = append(e.partitions, part)
	}
	return e, nil
}

func (f *Factory) newPartition(pair config.Pair) (partition, error) {
	node := pair.Value
	if !node.IsMapping() {
		return partition{}, config.NewError(node.Location(), "expected a mapping node")
	}
	entry, err := f.New(node)
	if err != nil {
		return partition{}, err
	}

	typeText, err := node.GetString("gpt_type", "")
	if err != nil {
		return partition{}, err
	}
	if typeText == "" {
		slog.Warn("no GPT type is provided, using generic data GUID",
			"partition", pair.Key, "location", node.Location())
		typeText = gpt.GenericDataGUID
	}
	gptType, err := gpt.ParseGUID(typeText)
	if err != nil {
		return partition{}, config.NewError(node.Location(), "%v", err)
	}

	var gptGUID uuid.UUID
	if guidText, err := node.GetString("gpt_guid", ""); err != nil {
		return partition{}, err
	} else if guidText != "" {
		gptGUID, err = gpt.ParseGUID(guidText)
		if err != nil {
			return partition{}, config.NewError(node.Location(), "%v", err)
		}
	}

	mbrType, err := node.GetInt("protective_mbr_type", 0)
	if err != nil {
		return partition{}, err
	}
	if mbrType < 0 || mbrType > 0xFF {
		return partition{}, config.NewError(node.Location(),
			"protective_mbr_type %d does not fit in a byte", mbrType)
	}

	return partition{
		label:   pair.Key,
		gptType: gptType,
		gptGUID: gptGUID,
		mbrType: byte(mbrType),
		entry:   entry,
		loc:     node.Location(),
	}, nil
}

// finalize sizes every child and lays out the table. It runs at most once;
// afterwards every partition has its start offset and the whole entry has
// its total size.
func (e *gptEntry) finalize() error {
	if e.finalized {
		return nil
	}
	requests := make([]gpt.Request, 0, len(e.partitions))
	for _, part := range e.partitions {
		size, err := part.entry.Size()
		if err != nil {
			return err
		}
		requests = append(requests, gpt.Request{
			Label:   part.label,
			Type:    part.gptType,
			GUID:    part.gptGUID,
			Size:    size,
			MBRType: part.mbrType,
		})
	}
	placed, total, err := gpt.Layout(requests, e.opts)
	if err != nil {
		return err
	}
	if e.requested != 0 {
		if e.requested < total {
			return &gpt.LayoutError{Msg: fmt.Sprintf(
				"requested image size %s is smaller than computed layout %s (%s)",
				sizes.HumanReadable(e.requested), sizes.HumanReadable(total), e.loc)}
		}
		// The image is padded to the requested size; partitions stay put.
		total = e.requested
	}
	e.placed = placed
	e.total = total
	e.finalized = true
	return nil
}

func (e *gptEntry) Size() (int64, error) {
	if err := e.finalize(); err != nil {
		return 0, err
	}
	return e.total, nil
}

func (e *gptEntry) Write(out *os.File, offset int64) error {
	if err := e.finalize(); err != nil {
		return err
	}
	if err := gpt.Render(out, offset, e.placed, e.total, e.opts); err != nil {
		return err
	}
	for i, part := range e.partitions {
		slog.Debug("writing partition", "label", part.label,
			"start", e.placed[i].Start, "size", e.placed[i].Size)
		if err := part.entry.Write(out, offset+e.placed[i].Start); err != nil {
			return err
		}
	}
	return nil
}

func (e *gptEntry) Deps() []string {
	var deps []string
	for _, part := range e.partitions {
		deps = append(deps, part.entry.Deps()...)
	}
	return deps
}
