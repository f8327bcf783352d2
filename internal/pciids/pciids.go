// Package pciids resolves PCI vendor/device/subsystem IDs to their
// human-readable names from the system's pci.ids database (spec.md §3
// "pci_vendor_name"/"pci_model_name"), grounded on the original
// daemon's use of the pciid_parser crate against the same well-known
// system paths.
package pciids

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/openlact/lactd/internal/log"
)

// wellKnownPaths are where Linux distros conventionally install the
// PCI ID database (hwdata's pci.ids, or a distro-trimmed copy).
var wellKnownPaths = []string{
	"/usr/share/hwdata/pci.ids",
	"/usr/share/misc/pci.ids",
	"/usr/share/pci.ids",
}

type device struct {
	name      string
	subsystem map[uint32]string // (subvendor<<16 | subdevice) -> name
}

type vendor struct {
	name    string
	devices map[uint16]device
}

// Database is a parsed pci.ids vendor/device/subsystem name table.
type Database struct {
	vendors map[uint16]vendor
}

// Load reads the first well-known pci.ids path found on the host. A
// missing database is not an error — callers degrade to omitting
// pci_vendor_name/pci_model_name, matching the original daemon's
// "device information will be limited" fallback.
func Load() *Database {
	for _, path := range wellKnownPaths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		db, err := parse(f)
		f.Close()
		if err != nil {
			log.Logger.Warnw("failed to parse pci.ids database", "path", path, "error", err)
			continue
		}
		return db
	}
	log.Logger.Warnw("no pci.ids database found, device information will be limited", "tried", wellKnownPaths)
	return &Database{vendors: map[uint16]vendor{}}
}

// parse implements the pci.ids text format: vendor lines start at
// column 0 ("XXXX  Vendor Name"), device lines are tab-indented under
// their vendor ("\tXXXX  Device Name"), and subsystem lines are
// double-tab-indented under their device ("\t\tXXXX XXXX  Subsystem
// Name"). Comment/blank lines and the trailing "C class" section are
// skipped.
func parse(f *os.File) (*Database, error) {
	db := &Database{vendors: map[uint16]vendor{}}

	var curVendorID uint16
	var curDeviceID uint16

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line[0] == 'C' {
			break // device class section follows; not needed here
		}

		switch {
		case !strings.HasPrefix(line, "\t"):
			id, name, ok := splitIDLine(line)
			if !ok {
				continue
			}
			v, err := strconv.ParseUint(id, 16, 16)
			if err != nil {
				continue
			}
			curVendorID = uint16(v)
			db.vendors[curVendorID] = vendor{name: name, devices: map[uint16]device{}}

		case strings.HasPrefix(line, "\t\t"):
			fields := strings.SplitN(strings.TrimPrefix(line, "\t\t"), "  ", 2)
			if len(fields) != 2 {
				continue
			}
			ids := strings.Fields(fields[0])
			if len(ids) != 2 {
				continue
			}
			subVendor, err1 := strconv.ParseUint(ids[0], 16, 16)
			subDevice, err2 := strconv.ParseUint(ids[1], 16, 16)
			if err1 != nil || err2 != nil {
				continue
			}
			vnd, ok := db.vendors[curVendorID]
			if !ok {
				continue
			}
			dev, ok := vnd.devices[curDeviceID]
			if !ok {
				continue
			}
			if dev.subsystem == nil {
				dev.subsystem = map[uint32]string{}
			}
			dev.subsystem[uint32(subVendor)<<16|uint32(subDevice)] = strings.TrimSpace(fields[1])
			vnd.devices[curDeviceID] = dev

		default:
			id, name, ok := splitIDLine(strings.TrimPrefix(line, "\t"))
			if !ok {
				continue
			}
			d, err := strconv.ParseUint(id, 16, 16)
			if err != nil {
				continue
			}
			curDeviceID = uint16(d)
			vnd, ok := db.vendors[curVendorID]
			if !ok {
				continue
			}
			vnd.devices[curDeviceID] = device{name: name}
			db.vendors[curVendorID] = vnd
		}
	}
	return db, scanner.Err()
}

func splitIDLine(line string) (id, name string, ok bool) {
	fields := strings.SplitN(line, "  ", 2)
	if len(fields) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]), true
}

// VendorName returns the vendor's name, if known.
func (db *Database) VendorName(vendorID uint16) (string, bool) {
	v, ok := db.vendors[vendorID]
	if !ok {
		return "", false
	}
	return v.name, true
}

// DeviceName returns the device's model name, if known.
func (db *Database) DeviceName(vendorID, deviceID uint16) (string, bool) {
	v, ok := db.vendors[vendorID]
	if !ok {
		return "", false
	}
	d, ok := v.devices[deviceID]
	if !ok {
		return "", false
	}
	return d.name, true
}

// SubsystemName returns the card/board name for a device's subsystem
// vendor:device pair, if the database lists it.
func (db *Database) SubsystemName(vendorID, deviceID, subVendorID, subDeviceID uint16) (string, bool) {
	v, ok := db.vendors[vendorID]
	if !ok {
		return "", false
	}
	d, ok := v.devices[deviceID]
	if !ok || d.subsystem == nil {
		return "", false
	}
	name, ok := d.subsystem[uint32(subVendorID)<<16|uint32(subDeviceID)]
	return name, ok
}

// String implements fmt.Stringer for Database, mostly for debug logs.
func (db *Database) String() string {
	return fmt.Sprintf("pciids.Database{%d vendors}", len(db.vendors))
}
