package pointcloud

import (
	"bufio"
	"fmt"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// IOError is returned when a PCD file could not be written. Nothing is left at Path when it is
// returned, other than a file that was already there.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("pcd %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error {
	return e.Err
}

const pcdFileMode = 0o644

// WritePCDFile writes the frame as ASCII PCD to path, replacing any existing file. The data is
// written to a temporary file in the same directory and renamed into place once synced, so a
// failed write never leaves a partial file at path. The directory must already exist.
func WritePCDFile(path string, frame *Frame) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			utils.UncheckedError(os.Remove(tmpName))
		}
	}()

	if err := WriteASCIIPCD(frame, tmp); err != nil {
		return &IOError{Op: "write", Path: path, Err: multierr.Combine(err, tmp.Close())}
	}
	if err := tmp.Chmod(pcdFileMode); err != nil {
		return &IOError{Op: "chmod", Path: path, Err: multierr.Combine(err, tmp.Close())}
	}
	if err := tmp.Sync(); err != nil {
		return &IOError{Op: "sync", Path: path, Err: multierr.Combine(err, tmp.Close())}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// WriteASCIIPCD writes the frame as an unorganized ASCII PCD v0.7 cloud with x y z rgb fields.
// Coordinates are written as float32 in shortest round-trip form. rgb is the packed 0x00RRGGBB
// color with its bits reinterpreted as a float32.
func WriteASCIIPCD(frame *Frame, out io.Writer) error {
	w := bufio.NewWriter(out)
	n := frame.Size()
	if _, err := fmt.Fprintf(w, "# .PCD v.7 - Point Cloud Data file format\n"+
		"VERSION .7\n"+
		"FIELDS x y z rgb\n"+
		"SIZE 4 4 4 4\n"+
		"TYPE F F F F\n"+
		"COUNT 1 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA ascii\n",
		n, n); err != nil {
		return err
	}

	buf := make([]byte, 0, 64)
	for _, p := range frame.points {
		buf = buf[:0]
		buf = appendFloat32(buf, float32(p.Position.X))
		buf = append(buf, ' ')
		buf = appendFloat32(buf, float32(p.Position.Y))
		buf = append(buf, ' ')
		buf = appendFloat32(buf, float32(p.Position.Z))
		buf = append(buf, ' ')
		buf = appendFloat32(buf, PackedRGBToFloat(p.PackedRGB()))
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return w.Flush()
}

func appendFloat32(buf []byte, f float32) []byte {
	return strconv.AppendFloat(buf, float64(f), 'g', -1, 32)
}

type pcdFieldType int

const (
	pcdPointOnly  pcdFieldType = 3
	pcdPointColor pcdFieldType = 4
)

type pcdValType string

const (
	pcdValFloat pcdValType = "F"
	pcdValInt   pcdValType = "I"
	pcdValUInt  pcdValType = "U"
)

// PCDHeader is the parsed header of a PCD file.
type PCDHeader struct {
	Fields    []string
	Size      []uint64
	Type      []string
	Count     []uint64
	Width     uint64
	Height    uint64
	Viewpoint [7]float64
	Points    uint64
	Data      string
}

// HasColor is true when the file carries an rgb field.
func (h *PCDHeader) HasColor() bool {
	return len(h.Fields) == int(pcdPointColor)
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parsePCDHeaderLine(line string, index int, header *PCDHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	value = strings.TrimSpace(value)
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}
	fields := len(header.Fields)

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		switch strings.Join(tokens, " ") {
		case "x y z", "x y z rgb":
			header.Fields = tokens
		default:
			return errors.Errorf("unsupported pcd fields %s", value)
		}
	case "SIZE":
		if len(tokens) != fields {
			return errors.New("unexpected number of fields in SIZE line")
		}
		header.Size = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.Size[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Errorf("invalid SIZE field %s", token)
			}
			if header.Size[i] != 4 {
				return errors.Errorf("unsupported SIZE %d for field %s", header.Size[i], header.Fields[i])
			}
		}
	case "TYPE":
		if len(tokens) != fields {
			return errors.New("unexpected number of fields in TYPE line")
		}
		for i, token := range tokens {
			switch pcdValType(token) {
			case pcdValFloat:
			case pcdValInt, pcdValUInt:
				if i < 3 {
					return errors.Errorf("unsupported TYPE %s for field %s", token, header.Fields[i])
				}
			default:
				return errors.Errorf("unsupported TYPE %s", token)
			}
		}
		header.Type = tokens
	case "COUNT":
		if len(tokens) != fields {
			return errors.New("unexpected number of fields in COUNT line")
		}
		header.Count = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.Count[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid COUNT field %s", token)
			}
		}
	case "WIDTH":
		header.Width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		header.Height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		for i, token := range tokens {
			header.Viewpoint[i], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid VIEWPOINT field %s", token)
			}
		}
	case "POINTS":
		var points uint64
		points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if hi, _ := bits.Mul64(header.Width, header.Height); hi != 0 {
			return errors.Errorf("WIDTH %d times HEIGHT %d overflows", header.Width, header.Height)
		}
		if points != header.Width*header.Height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, header.Width*header.Height)
		}
		header.Points = points
	case "DATA":
		if value != "ascii" {
			return errors.Errorf("unsupported pcd data type %s", value)
		}
		header.Data = value
	}

	return nil
}

// ReadPCDFile reads an ASCII PCD file from disk.
func ReadPCDFile(path string) (*Frame, *PCDHeader, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return ReadPCD(f)
}

// ReadPCD parses an ASCII PCD cloud with x y z or x y z rgb fields. The body must hold exactly
// POINTS lines.
func ReadPCD(inRaw io.Reader) (*Frame, *PCDHeader, error) {
	header := &PCDHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return nil, nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, header); err != nil {
			return nil, nil, err
		}
		headerLineCount++
	}

	frame, err := readPCDASCII(in, header)
	if err != nil {
		return nil, nil, err
	}
	return frame, header, nil
}

// maxPreallocPoints caps the capacity taken from the POINTS header before any body line is read.
const maxPreallocPoints = 1 << 16

func readPCDASCII(in *bufio.Reader, header *PCDHeader) (*Frame, error) {
	frame := NewFrame(int(min(header.Points, maxPreallocPoints)))
	fields := len(header.Fields)
	for i := uint64(0); i < header.Points; i++ {
		line, err := in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return nil, errors.Errorf("expected %d points, found %d", header.Points, i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != fields {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		var xyz [3]float64
		for j := 0; j < 3; j++ {
			xyz[j], err = strconv.ParseFloat(tokens[j], 32)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid point %d field %s", i, tokens[j])
			}
		}
		p := ColoredPoint{Position: r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}}
		if fields == int(pcdPointColor) {
			c, err := parsePCDColor(tokens[3], header.Type[3])
			if err != nil {
				return nil, errors.Wrapf(err, "invalid point %d color", i)
			}
			p.R, p.G, p.B = UnpackRGB(c)
		}
		frame.Append(p)
	}

	rest, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	if extra := strings.TrimSpace(string(rest)); extra != "" {
		return nil, errors.Errorf("found data after %d points", header.Points)
	}
	return frame, nil
}

func parsePCDColor(token, valType string) (uint32, error) {
	switch pcdValType(valType) {
	case pcdValFloat:
		f, err := strconv.ParseFloat(token, 32)
		if err != nil {
			return 0, err
		}
		return FloatToPackedRGB(float32(f)), nil
	default:
		c, err := strconv.ParseUint(token, 10, 32)
		if err != nil {
			return 0, err
		}
		return uint32(c), nil
	}
}
