// Command nalchi packs, unpacks, and measures bit streams from the
// command line.
//
// Usage:
//
//	nalchi pack [options] <value>...
//	nalchi unpack [options] <field>...
//	nalchi measure <value>...
//	nalchi version
//
// Pack Command:
//
//	Pack values into a bit stream.
//
//	Options:
//	  -out string       Output file (default: hex on stdout)
//	  -text string      Pack a text file's content as a 16-bit string value
//	  -encoding string  Text file encoding: utf-8, utf-16le, utf-16be (default "utf-8")
//
// Unpack Command:
//
//	Read fields back from a packed stream.
//
//	Options:
//	  -in string        Input file
//	  -hex string       Input as a hex string
//
// Measure Command:
//
//	Print the exact packed size of the given values without packing.
//
// Value Syntax:
//
//	bool:<true|false>
//	u8|u16|u32|u64:<value>:<min>:<max>
//	s8|s16|s32|s64:<value>:<min>:<max>
//	f32|f64:<value>
//	bytes:<hex>
//	str|str16|str32:<text>
//
// Field Syntax (unpack):
//
//	bool
//	u8|u16|u32|u64:<min>:<max>
//	s8|s16|s32|s64:<min>:<max>
//	f32|f64
//	bytes:<count>
//	str|str16|str32:<maxlen>
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/nalchi-net/nalchi/internal/wire"
	"github.com/nalchi-net/nalchi/pkg/bitstream"
)

const version = "0.2.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "pack", "p":
		cmdPack(os.Args[2:])
	case "unpack", "u":
		cmdUnpack(os.Args[2:])
	case "measure", "m":
		cmdMeasure(os.Args[2:])
	case "version":
		fmt.Printf("nalchi %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "nalchi: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `nalchi - bit stream packing tool

Usage:
  nalchi pack [options] <value>...
  nalchi unpack [options] <field>...
  nalchi measure <value>...
  nalchi version

Run with a value like "u32:5:0:7" (value 5 in range [0,7]) or
"str:hello". See the command documentation for the full syntax.`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "nalchi: "+format+"\n", args...)
	os.Exit(1)
}

// valueOp is one parsed pack value, applied to the measurer to size the
// buffer and then to the writer.
type valueOp struct {
	spec    string
	measure func(m *bitstream.Measurer)
	write   func(w *bitstream.Writer)
}

func cmdPack(args []string) {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	out := fs.String("out", "", "output file (default: hex on stdout)")
	textFile := fs.String("text", "", "pack a text file's content as a 16-bit string value")
	textEnc := fs.String("encoding", "utf-8", "text file encoding: utf-8, utf-16le, utf-16be")
	fs.Parse(args)

	var ops []valueOp
	for _, spec := range fs.Args() {
		op, err := parseValue(spec)
		if err != nil {
			fatalf("value %q: %v", spec, err)
		}
		ops = append(ops, op)
	}

	if *textFile != "" {
		op, err := textValue(*textFile, *textEnc)
		if err != nil {
			fatalf("text %q: %v", *textFile, err)
		}
		ops = append(ops, op)
	}

	if len(ops) == 0 {
		fatalf("pack: no values")
	}

	m := bitstream.NewMeasurer()
	for _, op := range ops {
		op.measure(m)
	}

	buf := make([]byte, wire.CeilWords(m.UsedBytes()))
	w := bitstream.NewWriterBuffer(buf, int(m.UsedBytes()))
	for _, op := range ops {
		op.write(w)
		if w.Fail() {
			fatalf("pack %q: %v", op.spec, w.Err())
		}
	}
	w.FlushFinal()
	if w.Fail() {
		fatalf("pack: %v", w.Err())
	}

	fmt.Fprintf(os.Stderr, "packed %d values into %d bits (%d bytes, %d on the wire)\n",
		len(ops), w.UsedBits(), w.UsedBytes(), len(buf))

	if *out != "" {
		if err := os.WriteFile(*out, buf, 0o644); err != nil {
			fatalf("write %q: %v", *out, err)
		}
		return
	}
	fmt.Println(hex.EncodeToString(buf))
}

func cmdUnpack(args []string) {
	fs := flag.NewFlagSet("unpack", flag.ExitOnError)
	in := fs.String("in", "", "input file")
	hexIn := fs.String("hex", "", "input as a hex string")
	fs.Parse(args)

	var data []byte
	var err error
	switch {
	case *in != "":
		data, err = os.ReadFile(*in)
	case *hexIn != "":
		data, err = hex.DecodeString(strings.TrimSpace(*hexIn))
	default:
		fatalf("unpack: need -in or -hex")
	}
	if err != nil {
		fatalf("unpack input: %v", err)
	}

	buf := make([]byte, wire.CeilWords(int64(len(data))))
	copy(buf, data)

	r := bitstream.NewReaderBuffer(buf, len(data))
	for _, spec := range fs.Args() {
		value, err := readField(r, spec)
		if err != nil {
			fatalf("field %q: %v", spec, err)
		}
		if r.Fail() {
			fatalf("field %q: %v", spec, r.Err())
		}
		fmt.Println(value)
	}
}

func cmdMeasure(args []string) {
	if len(args) == 0 {
		fatalf("measure: no values")
	}
	m := bitstream.NewMeasurer()
	for _, spec := range args {
		op, err := parseValue(spec)
		if err != nil {
			fatalf("value %q: %v", spec, err)
		}
		op.measure(m)
	}
	fmt.Printf("%d bits (%d bytes, %d on the wire)\n",
		m.UsedBits(), m.UsedBytes(), wire.CeilWords(m.UsedBytes()))
}

// textValue reads a text file in the given encoding and packs its
// content as a 16-bit string.
func textValue(path, enc string) (valueOp, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return valueOp{}, err
	}

	var dec encoding.Encoding
	switch enc {
	case "utf-8":
		dec = unicode.UTF8
	case "utf-16le":
		dec = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case "utf-16be":
		dec = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	default:
		return valueOp{}, fmt.Errorf("unknown encoding %q", enc)
	}

	decoded, _, err := transform.Bytes(dec.NewDecoder(), raw)
	if err != nil {
		return valueOp{}, err
	}

	units := utf16.Encode([]rune(string(decoded)))
	return valueOp{
		spec:    "text:" + path,
		measure: func(m *bitstream.Measurer) { m.WriteString16(units) },
		write:   func(w *bitstream.Writer) { w.WriteString16(units) },
	}, nil
}

func parseValue(spec string) (valueOp, error) {
	kind, rest, _ := strings.Cut(spec, ":")
	op := valueOp{spec: spec}

	switch kind {
	case "bool":
		v, err := strconv.ParseBool(rest)
		if err != nil {
			return op, err
		}
		op.measure = func(m *bitstream.Measurer) { m.WriteBool(v) }
		op.write = func(w *bitstream.Writer) { w.WriteBool(v) }

	case "u8", "u16", "u32", "u64":
		v, min, max, err := parseUintTriple(rest)
		if err != nil {
			return op, err
		}
		op.measure = func(m *bitstream.Measurer) { m.WriteUint64(v, min, max) }
		op.write = func(w *bitstream.Writer) { w.WriteUint64(v, min, max) }

	case "s8", "s16", "s32", "s64":
		v, min, max, err := parseIntTriple(rest)
		if err != nil {
			return op, err
		}
		op.measure = func(m *bitstream.Measurer) { m.WriteInt64(v, min, max) }
		op.write = func(w *bitstream.Writer) { w.WriteInt64(v, min, max) }

	case "f32":
		v, err := strconv.ParseFloat(rest, 32)
		if err != nil {
			return op, err
		}
		op.measure = func(m *bitstream.Measurer) { m.WriteFloat32(float32(v)) }
		op.write = func(w *bitstream.Writer) { w.WriteFloat32(float32(v)) }

	case "f64":
		v, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return op, err
		}
		op.measure = func(m *bitstream.Measurer) { m.WriteFloat64(v) }
		op.write = func(w *bitstream.Writer) { w.WriteFloat64(v) }

	case "bytes":
		b, err := hex.DecodeString(rest)
		if err != nil {
			return op, err
		}
		op.measure = func(m *bitstream.Measurer) { m.WriteBytes(b) }
		op.write = func(w *bitstream.Writer) { w.WriteBytes(b) }

	case "str":
		s := rest
		op.measure = func(m *bitstream.Measurer) { m.WriteString(s) }
		op.write = func(w *bitstream.Writer) { w.WriteString(s) }

	case "str16":
		units := utf16.Encode([]rune(rest))
		op.measure = func(m *bitstream.Measurer) { m.WriteString16(units) }
		op.write = func(w *bitstream.Writer) { w.WriteString16(units) }

	case "str32":
		runes := []rune(rest)
		op.measure = func(m *bitstream.Measurer) { m.WriteString32(runes) }
		op.write = func(w *bitstream.Writer) { w.WriteString32(runes) }

	default:
		return op, fmt.Errorf("unknown value kind %q", kind)
	}
	return op, nil
}

func parseUintTriple(rest string) (v, min, max uint64, err error) {
	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("want value:min:max")
	}
	if v, err = strconv.ParseUint(parts[0], 0, 64); err != nil {
		return
	}
	if min, err = strconv.ParseUint(parts[1], 0, 64); err != nil {
		return
	}
	max, err = strconv.ParseUint(parts[2], 0, 64)
	return
}

func parseIntTriple(rest string) (v, min, max int64, err error) {
	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("want value:min:max")
	}
	if v, err = strconv.ParseInt(parts[0], 0, 64); err != nil {
		return
	}
	if min, err = strconv.ParseInt(parts[1], 0, 64); err != nil {
		return
	}
	max, err = strconv.ParseInt(parts[2], 0, 64)
	return
}

// readField decodes one unpack field spec against the reader and
// renders the value.
func readField(r *bitstream.Reader, spec string) (string, error) {
	kind, rest, _ := strings.Cut(spec, ":")

	switch kind {
	case "bool":
		return strconv.FormatBool(r.ReadBool()), nil

	case "u8", "u16", "u32", "u64":
		parts := strings.Split(rest, ":")
		if len(parts) != 2 {
			return "", fmt.Errorf("want min:max")
		}
		min, err := strconv.ParseUint(parts[0], 0, 64)
		if err != nil {
			return "", err
		}
		max, err := strconv.ParseUint(parts[1], 0, 64)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(r.ReadUint64(min, max), 10), nil

	case "s8", "s16", "s32", "s64":
		parts := strings.Split(rest, ":")
		if len(parts) != 2 {
			return "", fmt.Errorf("want min:max")
		}
		min, err := strconv.ParseInt(parts[0], 0, 64)
		if err != nil {
			return "", err
		}
		max, err := strconv.ParseInt(parts[1], 0, 64)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(r.ReadInt64(min, max), 10), nil

	case "f32":
		return strconv.FormatFloat(float64(r.ReadFloat32()), 'g', -1, 32), nil

	case "f64":
		return strconv.FormatFloat(r.ReadFloat64(), 'g', -1, 64), nil

	case "bytes":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return "", err
		}
		dst := make([]byte, n)
		r.ReadBytes(dst)
		return hex.EncodeToString(dst), nil

	case "str", "str16", "str32":
		maxLen, err := strconv.Atoi(rest)
		if err != nil {
			return "", err
		}
		switch kind {
		case "str":
			return r.ReadString(maxLen), nil
		case "str16":
			return string(utf16.Decode(r.ReadString16(maxLen))), nil
		default:
			return string(r.ReadString32(maxLen)), nil
		}

	default:
		return "", fmt.Errorf("unknown field kind %q", kind)
	}
}
