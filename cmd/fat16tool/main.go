// Command fat16tool is a thin example CLI exercising the fat16 driver: it
// mounts an image and prints its geometry, lists its root directory or
// dumps one file, or formats a blank image from a named geometry preset. It is a demonstration built on top
// of the driver, not a feature of the driver itself.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/bspeice/fat16fs/device"
	"github.com/bspeice/fat16fs/disks"
	"github.com/bspeice/fat16fs/fat16"
)

func main() {
	app := cli.App{
		Usage: "Inspect and format FAT16 disk images",
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "Print the active partition's boot sector geometry",
				Action:    infoCommand,
				ArgsUsage: "IMAGE_FILE",
			},
			{
				Name:      "ls",
				Usage:     "List the root directory",
				Action:    lsCommand,
				ArgsUsage: "IMAGE_FILE",
			},
			{
				Name:      "cat",
				Usage:     "Dump a file's contents to stdout",
				Action:    catCommand,
				ArgsUsage: "IMAGE_FILE ENTRY_INDEX",
			},
			{
				Name:      "format",
				Usage:     "Create a blank FAT16 image from a named geometry preset",
				Action:    formatCommand,
				ArgsUsage: "GEOMETRY_SLUG OUTPUT_FILE",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func openImage(path string) (*fat16.Manager, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	hasMBR := raw[0x1FE] == 0x55 && raw[0x1FF] == 0xAA
	dev := device.NewMemoryDevice(raw, hasMBR)
	return fat16.Mount(dev)
}

func infoCommand(ctx *cli.Context) error {
	mgr, err := openImage(ctx.Args().First())
	if err != nil {
		return err
	}

	boot := mgr.BootSector()
	fmt.Printf("sector size:        %d\n", boot.SectorSize)
	fmt.Printf("sectors/cluster:    %d\n", boot.SectorsPerCluster)
	fmt.Printf("FAT copies:         %d\n", boot.NumFATs)
	fmt.Printf("sectors/FAT:        %d\n", boot.SectorsPerFAT)
	fmt.Printf("root entries:       %d\n", boot.RootEntryCount)
	fmt.Printf("FAT offset:         %d\n", boot.FATOffset)
	fmt.Printf("root dir offset:    %d\n", boot.RootDirOffset)
	fmt.Printf("data offset:        %d\n", boot.DataOffset)
	fmt.Printf("clusters in FAT:    %d\n", boot.NumClustersInFAT)
	if partType, ok := mgr.PartitionType(); ok {
		fmt.Printf("partition type:     0x%02X (FAT16: %t)\n", byte(partType), partType.IsFAT16())
	}
	return nil
}

func lsCommand(ctx *cli.Context) error {
	mgr, err := openImage(ctx.Args().First())
	if err != nil {
		return err
	}

	for i, entry := range mgr.CurrentDirectoryEntries() {
		if entry.IsUnused() {
			continue
		}
		kind := "file"
		if entry.IsSubdirectory() {
			kind = "dir"
		} else if entry.IsVolumeLabel() {
			kind = "label"
		}
		deleted := ""
		if entry.IsDeleted() {
			deleted = " (deleted)"
		}
		fmt.Printf("%3d  %-5s  %10d  %s%s\n", i, kind, entry.FileSize, entry.DisplayName(), deleted)
	}
	return nil
}

func catCommand(ctx *cli.Context) error {
	mgr, err := openImage(ctx.Args().Get(0))
	if err != nil {
		return err
	}

	index := ctx.Args().Get(1)
	var n int
	if _, err := fmt.Sscanf(index, "%d", &n); err != nil {
		return fmt.Errorf("invalid entry index %q", index)
	}

	entry, err := mgr.SelectEntry(n)
	if err != nil {
		return err
	}
	if err := mgr.ReadEntry(&entry); err != nil {
		return err
	}

	remaining := int64(entry.FileSize)
	for entry.Stream.InProgress {
		sector, err := mgr.GetSelectedFileNextSector(&entry)
		if err != nil {
			return err
		}
		if len(sector) == 0 {
			break
		}
		if int64(len(sector)) > remaining {
			sector = sector[:remaining]
		}
		os.Stdout.Write(sector)
		remaining -= int64(len(sector))
	}
	return nil
}

func formatCommand(ctx *cli.Context) error {
	slug := ctx.Args().Get(0)
	outputPath := ctx.Args().Get(1)

	geometry, err := disks.Lookup(slug)
	if err != nil {
		return err
	}

	mem, err := disks.Format(geometry, "NO NAME")
	if err != nil {
		return err
	}

	image := make([]byte, mem.Size())
	if err := mem.ReadAt(image, 0); err != nil {
		return err
	}
	return os.WriteFile(outputPath, image, 0o644)
}
