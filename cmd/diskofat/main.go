package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dargueta/diskofat/blockdev"
	"github.com/dargueta/diskofat/drivers/fat"
	"github.com/dargueta/diskofat/geometry"
	"github.com/dargueta/diskofat/mkfs"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

func main() {
	app := cli.App{
		Name:  "diskofat",
		Usage: "Inspect and format FAT12/16/32 disk images",
		Commands: []*cli.Command{
			lsCommand,
			catCommand,
			mkfsCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func wallClock() uint32 {
	return packNow(time.Now())
}

func packNow(t time.Time) uint32 {
	year := uint32(t.Year() - 1980)
	date := year<<9 | uint32(t.Month())<<5 | uint32(t.Day())
	tm := uint32(t.Hour())<<11 | uint32(t.Minute())<<5 | uint32(t.Second()/2)
	return date<<16 | tm
}

func openVolume(path string) (*fat.Volume, *blockdev.FileBlockDevice, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	totalSectors := uint(info.Size() / fat.SectorSize)

	dev, err := blockdev.OpenFileBlockDevice(path, totalSectors, false)
	if err != nil {
		return nil, nil, err
	}

	vol := fat.NewVolume(dev, wallClock, fat.Config{Drives: 1})
	return vol, dev, nil
}

// resolvePathArg registers vol at drive slot 0 (spec.md section 9's volume
// slot table) and resolves arg against it. A bare arg is used against vol
// directly; an "N:"-prefixed arg is instead routed through the slot table,
// exercising the same path spec.md section 6 describes for drive selection.
func resolvePathArg(vol *fat.Volume, arg string) (*fat.Volume, string, func(), error) {
	if _, err := fat.Mount(0, vol); err != nil {
		return nil, "", func() {}, err
	}
	cleanup := func() { fat.Mount(0, nil) }

	if resolved, rest, rerr := fat.ResolveVolume(arg); rerr == nil {
		return resolved, rest, cleanup, nil
	}
	return vol, arg, cleanup, nil
}

var lsCommand = &cli.Command{
	Name:      "ls",
	Usage:     "List the entries of a directory in a disk image",
	ArgsUsage: "IMAGE [PATH]",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 1 {
			return fmt.Errorf("usage: diskofat ls IMAGE [PATH]")
		}
		path := ""
		if c.Args().Len() > 1 {
			path = c.Args().Get(1)
		}

		vol, dev, err := openVolume(c.Args().First())
		if err != nil {
			return err
		}
		defer dev.Close()

		vol, path, cleanup, rerr := resolvePathArg(vol, path)
		if rerr != nil {
			return rerr
		}
		defer cleanup()

		dir, derr := vol.OpenDir(path)
		if derr != nil {
			return derr
		}
		for {
			entry, ok, rerr := dir.ReadDir()
			if rerr != nil {
				return rerr
			}
			if !ok {
				break
			}
			kind := "FILE"
			if entry.IsDir() {
				kind = "DIR "
			}
			fmt.Printf("%s %10d %s\n", kind, entry.Size, entry.Name)
		}
		logger.Info("listed directory", "image", c.Args().First(), "path", path)
		return nil
	},
}

var catCommand = &cli.Command{
	Name:      "cat",
	Usage:     "Print a file's contents from a disk image",
	ArgsUsage: "IMAGE PATH",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return fmt.Errorf("usage: diskofat cat IMAGE PATH")
		}

		vol, dev, err := openVolume(c.Args().First())
		if err != nil {
			return err
		}
		defer dev.Close()

		vol, path, cleanup, rerr := resolvePathArg(vol, c.Args().Get(1))
		if rerr != nil {
			return rerr
		}
		defer cleanup()

		f, ferr := fat.Open(vol, path, fat.FlagRead)
		if ferr != nil {
			return ferr
		}

		buf := make([]byte, fat.SectorSize)
		for {
			n, rerr := f.Read(buf)
			if rerr != nil {
				return rerr
			}
			if n == 0 {
				break
			}
			os.Stdout.Write(buf[:n])
		}
		return f.Close()
	},
}

var mkfsCommand = &cli.Command{
	Name:      "mkfs",
	Usage:     "Format a new disk image",
	ArgsUsage: "IMAGE",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "geometry", Value: "fd1440", Usage: "predefined geometry slug"},
		&cli.BoolFlag{Name: "partitioned", Usage: "write an MBR partition table"},
		&cli.StringFlag{Name: "label", Value: "NO NAME"},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 1 {
			return fmt.Errorf("usage: diskofat mkfs IMAGE")
		}

		geom, err := geometry.Lookup(c.String("geometry"))
		if err != nil {
			return err
		}

		buf := make([]byte, geom.TotalSizeBytes())
		dev := blockdev.NewMemBlockDevice(buf, geom.TotalSectors)

		plan := mkfs.Plan{
			TotalSectors:      uint32(geom.TotalSectors),
			SectorsPerCluster: uint8(geom.SectorsPerCluster),
			FATCopies:         2,
			Partitioned:       c.Bool("partitioned"),
			VolumeLabel:       c.String("label"),
		}
		if err := mkfs.Format(dev, plan); err != nil {
			return err
		}

		if err := os.WriteFile(c.Args().First(), buf, 0o644); err != nil {
			return err
		}
		logger.Info("formatted image", "image", c.Args().First(), "geometry", geom.Slug)
		return nil
	},
}
