package cli

import (
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/capstone-rov/rgbdcapture/pointcloud"
)

// InspectAction prints a table with the size, point count, and bounds of each PCD file given.
func InspectAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("inspect needs at least one PCD file")
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"File", "Points", "Color", "Min (m)", "Max (m)", "Center (m)", "Size"})
	for _, path := range c.Args().Slice() {
		frame, header, err := pointcloud.ReadPCDFile(path)
		if err != nil {
			return errors.Wrapf(err, "cannot inspect %s", path)
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		meta := frame.MetaData()
		row := table.Row{path, frame.Size(), header.HasColor(), "", "", "", units.HumanSize(float64(info.Size()))}
		if frame.Size() > 0 {
			center := meta.Center()
			row[3] = fmt.Sprintf("%.3f, %.3f, %.3f", meta.MinX, meta.MinY, meta.MinZ)
			row[4] = fmt.Sprintf("%.3f, %.3f, %.3f", meta.MaxX, meta.MaxY, meta.MaxZ)
			row[5] = fmt.Sprintf("%.3f, %.3f, %.3f", center.X, center.Y, center.Z)
		}
		t.AppendRow(row)
	}
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}
