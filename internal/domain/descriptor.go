package domain

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// DescriptorFileName is the archive name of the CMORPH daily GrADS control file.
const DescriptorFileName = "CMORPH_V1.0_RAW_0.25deg-DLY_00Z.ctl"

// Axis is a linear GrADS dimension mapping.
type Axis struct {
	Count int
	Start float64
	Step  float64
}

// Values expands the axis into coordinate values.
func (a Axis) Values() []float32 {
	out := make([]float32, a.Count)
	for i := range out {
		out[i] = float32(a.Start + float64(i)*a.Step)
	}
	return out
}

// Descriptor describes the layout of CMORPH binary files, as published in
// the product's GrADS control (.ctl) file.
type Descriptor struct {
	Dataset        string
	Title          string
	VarName        string
	VarDescription string
	Undef          float32
	BigEndian      bool
	X              Axis
	Y              Axis
	Start          time.Time
}

// DefaultDescriptor returns the layout of the CMORPH V1.0 0.25 degree daily product.
func DefaultDescriptor() Descriptor {
	return Descriptor{
		Dataset:        "../0.25deg-DLY_00Z/%y4/%y4%m2/CMORPH_V1.0_RAW_0.25deg-DLY_00Z_%y4%m2%d2",
		Title:          "CMORPH Version 1.0BETA Version, daily precip from 00Z-24Z",
		VarName:        "cmorph",
		VarDescription: "CMORPH Version 1.o daily precipitation (mm)",
		Undef:          -999.0,
		X:              Axis{Count: 1440, Start: 0.125, Step: 0.25},
		Y:              Axis{Count: 480, Start: -59.875, Step: 0.25},
		Start:          time.Date(1998, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// ByteOrder returns the byte order of the binary values.
func (d Descriptor) ByteOrder() binary.ByteOrder {
	if d.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ExpectedBytes is the size of one time-step of float32 values.
func (d Descriptor) ExpectedBytes() int {
	return d.X.Count * d.Y.Count * 4
}

// ParseDescriptor reads a GrADS control file. Only the entries needed to decode
// a single-level, single-variable binary file are interpreted.
func ParseDescriptor(r io.Reader) (Descriptor, error) {
	var d Descriptor
	var haveX, haveY, inVars bool

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(line, "*") {
			continue
		}
		keyword := strings.ToUpper(fields[0])

		if inVars {
			if keyword == "ENDVARS" {
				inVars = false
				continue
			}
			if d.VarName == "" {
				d.VarName = fields[0]
				if len(fields) > 4 {
					d.VarDescription = strings.Join(fields[4:], " ")
				}
			}
			continue
		}

		var err error
		switch keyword {
		case "DSET":
			if len(fields) > 1 {
				d.Dataset = strings.TrimPrefix(fields[1], "^")
			}
		case "TITLE":
			d.Title = strings.TrimSpace(line[len(fields[0]):])
		case "OPTIONS":
			for _, opt := range fields[1:] {
				switch strings.ToLower(opt) {
				case "big_endian":
					d.BigEndian = true
				case "little_endian":
					d.BigEndian = false
				}
			}
		case "UNDEF":
			err = parseUndef(fields, &d)
		case "XDEF":
			d.X, err = parseLinearAxis(fields)
			haveX = err == nil
		case "YDEF":
			d.Y, err = parseLinearAxis(fields)
			haveY = err == nil
		case "TDEF":
			err = parseTimeAxis(fields, &d)
		case "VARS":
			inVars = true
		}
		if err != nil {
			return Descriptor{}, fmt.Errorf("%w: descriptor line %d: %v", ErrFormat, lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Descriptor{}, fmt.Errorf("%w: read descriptor: %v", ErrIO, err)
	}

	if !haveX || !haveY {
		return Descriptor{}, fmt.Errorf("%w: descriptor is missing XDEF or YDEF", ErrFormat)
	}
	return d, nil
}

func parseUndef(fields []string, d *Descriptor) error {
	if len(fields) < 2 {
		return fmt.Errorf("UNDEF needs a value")
	}
	v, err := strconv.ParseFloat(fields[1], 32)
	if err != nil {
		return fmt.Errorf("UNDEF: %v", err)
	}
	d.Undef = float32(v)
	return nil
}

func parseLinearAxis(fields []string) (Axis, error) {
	if len(fields) < 5 {
		return Axis{}, fmt.Errorf("%s: want \"<count> LINEAR <start> <step>\"", fields[0])
	}
	if !strings.EqualFold(fields[2], "LINEAR") {
		return Axis{}, fmt.Errorf("%s: unsupported mapping %q", fields[0], fields[2])
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil || count <= 0 {
		return Axis{}, fmt.Errorf("%s: invalid count %q", fields[0], fields[1])
	}
	start, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return Axis{}, fmt.Errorf("%s: invalid start %q", fields[0], fields[3])
	}
	step, err := strconv.ParseFloat(fields[4], 64)
	if err != nil || step <= 0 {
		return Axis{}, fmt.Errorf("%s: invalid increment %q", fields[0], fields[4])
	}
	return Axis{Count: count, Start: start, Step: step}, nil
}

func parseTimeAxis(fields []string, d *Descriptor) error {
	if len(fields) < 4 {
		return fmt.Errorf("TDEF: want \"<count> LINEAR <date> <step>\"")
	}
	t, err := ParseGradsDate(fields[3])
	if err != nil {
		return fmt.Errorf("TDEF: %v", err)
	}
	d.Start = t
	return nil
}

// ParseGradsDate parses a GrADS absolute date such as "01jan1998" or
// "00z01jan1998". The hour prefix is ignored since CMORPH steps are daily.
func ParseGradsDate(s string) (time.Time, error) {
	if i := strings.IndexAny(s, "zZ"); i >= 0 {
		s = s[i+1:]
	}
	t, err := time.Parse("02Jan2006", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// Format renders the descriptor as a GrADS control file.
func (d Descriptor) Format() string {
	order := "little_endian"
	if d.BigEndian {
		order = "big_endian"
	}
	name := d.VarName
	if name == "" {
		name = "cmorph"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "DSET %s\n", d.Dataset)
	fmt.Fprintf(&b, "TITLE  %s\n", d.Title)
	fmt.Fprintf(&b, "OPTIONS template %s\n", order)
	fmt.Fprintf(&b, "UNDEF  %.1f\n", d.Undef)
	fmt.Fprintf(&b, "XDEF %d LINEAR %s %s\n", d.X.Count, formatFloat(d.X.Start), formatFloat(d.X.Step))
	fmt.Fprintf(&b, "YDEF %d LINEAR %s %s\n", d.Y.Count, formatFloat(d.Y.Start), formatFloat(d.Y.Step))
	b.WriteString("ZDEF   01 LEVELS 1\n")
	fmt.Fprintf(&b, "TDEF 99999 LINEAR  %s 1dy\n", strings.ToLower(d.Start.Format("02Jan2006")))
	b.WriteString("VARS 1\n")
	fmt.Fprintf(&b, "%s   1   99 yyyyy %s\n", name, d.VarDescription)
	b.WriteString("ENDVARS\n")
	return b.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
