package zfs

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/Freaky/zfsnapr/pkg/safepath"
	"github.com/Freaky/zfsnapr/pkg/snaprun"
	"github.com/function61/gokit/logex"
)

type Client struct {
	runner snaprun.Runner
	log    *logex.Leveled
}

func NewClient(runner snaprun.Runner, logger *log.Logger) *Client {
	return &Client{runner, logex.Levels(logex.NonNil(logger))}
}

// ListMounted returns every currently mounted filesystem dataset that has a
// usable absolute mountpoint, sorted ascending by mountpoint.
func (c *Client) ListMounted(ctx context.Context) ([]Dataset, error) {
	return c.listDatasets(ctx, "mounted", func(value string) bool {
		return value == "yes"
	})
}

// ListMountable is the root-scanning variant of ListMounted: it also returns
// datasets that are not mounted right now but could be (canmount != off).
func (c *Client) ListMountable(ctx context.Context) ([]Dataset, error) {
	return c.listDatasets(ctx, "canmount", func(value string) bool {
		return value != "off"
	})
}

func (c *Client) listDatasets(ctx context.Context, attribute string, keep func(string) bool) ([]Dataset, error) {
	output, err := c.runner.Output(ctx, "zfs", "list", "-H", "-o", "name,"+attribute, "-t", "filesystem")
	if err != nil {
		return nil, err
	}

	datasets := []Dataset{}
	for _, line := range strings.Split(strings.TrimSuffix(string(output), "\n"), "\n") {
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 || !keep(fields[1]) {
			continue
		}

		mountpoint, usable, err := c.mountpoint(ctx, fields[0])
		if err != nil {
			return nil, err
		}
		if !usable { // "legacy", "none", "-"
			continue
		}

		datasets = append(datasets, Dataset{Name: fields[0], Mountpoint: mountpoint})
	}

	sort.Slice(datasets, func(i, j int) bool {
		return datasets[i].Mountpoint.String() < datasets[j].Mountpoint.String()
	})

	return datasets, nil
}

// mountpoint is fetched with a separate query per dataset because mountpoints
// may contain characters (tab, even newline) that would corrupt single-pass
// parsing of the tabular list output. A per-dataset query's stdout is the
// whole value plus one trailing newline, which survives any embedded bytes.
func (c *Client) mountpoint(ctx context.Context, name string) (safepath.Path, bool, error) {
	output, err := c.runner.Output(ctx, "zfs", "get", "-H", "-o", "value", "mountpoint", name)
	if err != nil {
		return safepath.Path{}, false, err
	}

	mountpoint, err := safepath.Parse(strings.TrimSuffix(string(output), "\n"))
	if err != nil {
		return safepath.Path{}, false, nil
	}

	return mountpoint, true, nil
}

// ListPools returns the names of pools that have no alternate root
// configured. A pool imported with an altroot has already been relocated and
// must not take part in recursive snapshotting.
func (c *Client) ListPools(ctx context.Context) ([]string, error) {
	output, err := c.runner.Output(ctx, "zpool", "list", "-H", "-o", "name,altroot")
	if err != nil {
		return nil, err
	}

	pools := []string{}
	for _, line := range strings.Split(strings.TrimSuffix(string(output), "\n"), "\n") {
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}

		if fields[1] == "-" {
			pools = append(pools, fields[0])
		} else {
			c.log.Debug.Printf("skipping pool %s with altroot %s", fields[0], fields[1])
		}
	}

	if len(pools) == 0 {
		return nil, fmt.Errorf("no usable pools found")
	}

	return pools, nil
}
