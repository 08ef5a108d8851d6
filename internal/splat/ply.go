package splat

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// plyProperties is the vertex property layout used by Gaussian-splat
// browser viewers. Order matters; readers index properties by position in
// the header.
var plyProperties = []string{
	"x", "y", "z",
	"nx", "ny", "nz",
	"f_dc_0", "f_dc_1", "f_dc_2",
	"opacity",
	"scale_0", "scale_1", "scale_2",
	"rot_0", "rot_1", "rot_2", "rot_3",
}

// WritePLY writes the Gaussian set as a binary little-endian PLY file in the
// layout expected by standard splat viewers. The normal fields are written
// as zeros; viewers ignore them but some parsers require their presence.
func WritePLY(w io.Writer, g *Gaussians) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid gaussians: %w", err)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ply\n")
	fmt.Fprintf(bw, "format binary_little_endian 1.0\n")
	fmt.Fprintf(bw, "element vertex %d\n", g.Count())
	for _, p := range plyProperties {
		fmt.Fprintf(bw, "property float %s\n", p)
	}
	fmt.Fprintf(bw, "end_header\n")

	n := g.Count()
	// one vertex record at a time; 17 float32 fields per vertex
	record := make([]float32, len(plyProperties))
	for i := 0; i < n; i++ {
		record[0] = g.Means[3*i]
		record[1] = g.Means[3*i+1]
		record[2] = g.Means[3*i+2]
		record[3], record[4], record[5] = 0, 0, 0
		record[6] = g.Colors[3*i]
		record[7] = g.Colors[3*i+1]
		record[8] = g.Colors[3*i+2]
		record[9] = g.Opacities[i]
		record[10] = g.Scales[3*i]
		record[11] = g.Scales[3*i+1]
		record[12] = g.Scales[3*i+2]
		record[13] = g.Rotations[4*i]
		record[14] = g.Rotations[4*i+1]
		record[15] = g.Rotations[4*i+2]
		record[16] = g.Rotations[4*i+3]
		if err := binary.Write(bw, binary.LittleEndian, record); err != nil {
			return fmt.Errorf("write vertex %d: %w", i, err)
		}
	}

	return bw.Flush()
}

// ReadPLY parses a binary little-endian PLY file previously written by
// WritePLY. It is strict about the property layout: files from other tools
// with reordered or extra properties are rejected.
func ReadPLY(r io.Reader) (*Gaussians, error) {
	br := bufio.NewReader(r)

	count, err := readPLYHeader(br)
	if err != nil {
		return nil, err
	}

	g := &Gaussians{
		Means:     make([]float32, 3*count),
		Scales:    make([]float32, 3*count),
		Rotations: make([]float32, 4*count),
		Opacities: make([]float32, count),
		Colors:    make([]float32, 3*count),
	}

	record := make([]float32, len(plyProperties))
	for i := 0; i < count; i++ {
		if err := binary.Read(br, binary.LittleEndian, record); err != nil {
			return nil, fmt.Errorf("read vertex %d: %w", i, err)
		}
		g.Means[3*i] = record[0]
		g.Means[3*i+1] = record[1]
		g.Means[3*i+2] = record[2]
		g.Colors[3*i] = record[6]
		g.Colors[3*i+1] = record[7]
		g.Colors[3*i+2] = record[8]
		g.Opacities[i] = record[9]
		g.Scales[3*i] = record[10]
		g.Scales[3*i+1] = record[11]
		g.Scales[3*i+2] = record[12]
		g.Rotations[4*i] = record[13]
		g.Rotations[4*i+1] = record[14]
		g.Rotations[4*i+2] = record[15]
		g.Rotations[4*i+3] = record[16]
	}

	return g, nil
}

// readPLYHeader consumes the ASCII header and returns the vertex count.
func readPLYHeader(br *bufio.Reader) (int, error) {
	magic, err := br.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("read ply magic: %w", err)
	}
	if strings.TrimSpace(magic) != "ply" {
		return 0, fmt.Errorf("not a ply file")
	}

	count := -1
	propIdx := 0
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return 0, fmt.Errorf("read ply header: %w", err)
		}
		line = strings.TrimSpace(line)

		switch {
		case line == "end_header":
			if count < 0 {
				return 0, fmt.Errorf("ply header missing vertex element")
			}
			if propIdx != len(plyProperties) {
				return 0, fmt.Errorf("ply header has %d vertex properties, want %d", propIdx, len(plyProperties))
			}
			return count, nil

		case line == "format binary_little_endian 1.0":
			// accepted

		case strings.HasPrefix(line, "format "):
			return 0, fmt.Errorf("unsupported ply format %q", line)

		case strings.HasPrefix(line, "comment "):
			// ignored

		case strings.HasPrefix(line, "element vertex "):
			count, err = strconv.Atoi(strings.TrimPrefix(line, "element vertex "))
			if err != nil || count < 0 {
				return 0, fmt.Errorf("invalid vertex count in %q", line)
			}

		case strings.HasPrefix(line, "element "):
			return 0, fmt.Errorf("unsupported ply element %q", line)

		case strings.HasPrefix(line, "property float "):
			name := strings.TrimPrefix(line, "property float ")
			if propIdx >= len(plyProperties) || name != plyProperties[propIdx] {
				return 0, fmt.Errorf("unexpected ply property %q at index %d", name, propIdx)
			}
			propIdx++

		case strings.HasPrefix(line, "property "):
			return 0, fmt.Errorf("unsupported ply property type in %q", line)

		default:
			return 0, fmt.Errorf("unrecognised ply header line %q", line)
		}
	}
}
