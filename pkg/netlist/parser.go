package netlist

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edp1096/toy-mcusim/pkg/device"
)

type AnalysisType int

const (
	AnalysisNone AnalysisType = iota
	AnalysisOP
	AnalysisTRAN
	AnalysisDC
)

func (a AnalysisType) String() string {
	switch a {
	case AnalysisOP:
		return "op"
	case AnalysisTRAN:
		return "tran"
	case AnalysisDC:
		return "dc"
	}
	return "none"
}

type NetlistData struct {
	Elements  []Element                    // Circuit elements
	Nodes     map[string]int               // Node name and first-seen index
	Models    map[string]device.ModelParam // Model parameters
	Options   map[string]string            // .options key=value
	Analysis  AnalysisType                 // Analysis type
	TranParam struct {
		TStep  float64 // output step
		TStop  float64 // stop time
		TStart float64 // start time
	}
	DCParam struct {
		Source1    string
		Start1     float64
		Stop1      float64
		Increment1 float64
		Source2    string
		Start2     float64
		Stop2      float64
		Increment2 float64
	}
	Title string // Circuit title
}

type Element struct {
	Type   string            // Part type (R, L, C, V, U, etc.)
	Name   string            // Part name
	Nodes  []string          // Node names
	Value  float64           // Part value
	Params map[string]string // Parameter values
	Pins   []string          // Chip pin names, parallel to Nodes
}

var unitMap = map[string]float64{
	"T":   1e12,  // tera
	"G":   1e9,   // giga
	"meg": 1e6,   // mega
	"MEG": 1e6,   // mega
	"K":   1e3,   // kilo
	"k":   1e3,   // kilo
	"m":   1e-3,  // milli
	"u":   1e-6,  // micro
	"n":   1e-9,  // nano
	"p":   1e-12, // pico
	"f":   1e-15, // femto
}

var (
	valueRe = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)(meg|MEG|[TGKkmunpf])?(?:s|V|A|Hz|ohm)?$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

func Parse(input string) (*NetlistData, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	netlistData := &NetlistData{
		Nodes:   make(map[string]int),
		Models:  make(map[string]device.ModelParam),
		Options: make(map[string]string),
	}

	// Title or comment
	if scanner.Scan() {
		netlistData.Title = strings.TrimPrefix(scanner.Text(), "*")
		netlistData.Title = strings.TrimSpace(netlistData.Title)
	}

	var currentLine string
	var continuationMode bool
	lineNo, stmtLine := 1, 1

	flush := func() error {
		if currentLine == "" {
			return nil
		}
		err := parseLine(netlistData, currentLine)
		currentLine = ""
		if err != nil {
			return fmt.Errorf("line %d: %w", stmtLine, err)
		}
		return nil
	}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		// Blank line ends a statement
		if len(line) == 0 {
			if err := flush(); err != nil {
				return nil, err
			}
			continuationMode = false
			continue
		}

		// Inline comments
		if idx := strings.IndexAny(line, "*;"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
			if len(line) == 0 {
				continue
			}
		}

		if strings.EqualFold(line, ".end") {
			break
		}

		// Line continuation
		if strings.HasPrefix(line, "+") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "+"))
			if currentLine != "" {
				currentLine += " " + line
			}
			continuationMode = true
			continue
		}

		// Indented continuation
		if continuationMode && strings.HasPrefix(raw, " ") {
			if currentLine != "" {
				currentLine += " " + line
			}
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		currentLine = line
		stmtLine = lineNo
		continuationMode = false
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return netlistData, nil
}

func parseLine(netlistData *NetlistData, line string) error {
	line = spaceRe.ReplaceAllString(line, " ")

	if strings.HasPrefix(line, ".") {
		return parseDotOperator(netlistData, line)
	}

	element, err := parseElement(line)
	if err != nil {
		return err
	}

	netlistData.Elements = append(netlistData.Elements, *element)
	for _, node := range element.Nodes {
		if _, exists := netlistData.Nodes[node]; !exists {
			netlistData.Nodes[node] = len(netlistData.Nodes)
		}
	}
	return nil
}

// Parse .op, .tran, .dc, .model, .options
func parseDotOperator(netlistData *NetlistData, line string) error {
	var err error

	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ".model":
		return parseModel(netlistData, fields[1:])

	case ".options", ".option":
		for _, kv := range fields[1:] {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("invalid option %q, want key=value", kv)
			}
			netlistData.Options[strings.ToLower(key)] = value
		}

	case ".op":
		netlistData.Analysis = AnalysisOP

	case ".tran":
		netlistData.Analysis = AnalysisTRAN
		if len(fields) < 3 {
			return fmt.Errorf("insufficient tran parameters, need at least tstep and tstop")
		}
		netlistData.TranParam.TStep, err = ParseValue(fields[1])
		if err != nil {
			return fmt.Errorf("invalid tstep: %v", err)
		}
		netlistData.TranParam.TStop, err = ParseValue(fields[2])
		if err != nil {
			return fmt.Errorf("invalid tstop: %v", err)
		}
		// tmax and uic are accepted for compatibility; every run starts from reset
		if len(fields) > 3 && !strings.EqualFold(fields[3], "uic") {
			netlistData.TranParam.TStart, err = ParseValue(fields[3])
			if err != nil {
				return fmt.Errorf("invalid tstart: %v", err)
			}
		}

	case ".dc":
		netlistData.Analysis = AnalysisDC
		if len(fields) != 5 && len(fields) != 9 {
			return fmt.Errorf("insufficient DC sweep parameters")
		}
		p := &netlistData.DCParam
		p.Source1 = fields[1]
		if p.Start1, p.Stop1, p.Increment1, err = parseSweep(fields[2:5]); err != nil {
			return err
		}
		if len(fields) == 9 {
			p.Source2 = fields[5]
			if p.Start2, p.Stop2, p.Increment2, err = parseSweep(fields[6:9]); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("unsupported analysis type: %s", fields[0])
	}

	return nil
}

func parseSweep(fields []string) (start, stop, inc float64, err error) {
	if start, err = ParseValue(fields[0]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start value: %v", err)
	}
	if stop, err = ParseValue(fields[1]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid stop value: %v", err)
	}
	if inc, err = ParseValue(fields[2]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid increment value: %v", err)
	}
	return start, stop, inc, nil
}

// parseModel reads ".model NAME D(is=1e-14 n=1.5)"; the parentheses are
// optional.
func parseModel(netlistData *NetlistData, fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("insufficient model parameters")
	}

	modelName := fields[0]
	rest := strings.Join(fields[1:], " ")
	modelType, paramStr, _ := strings.Cut(rest, "(")
	if typ, more, ok := strings.Cut(strings.TrimSpace(modelType), " "); ok {
		modelType, paramStr = typ, more+" "+paramStr
	}
	modelType = strings.ToUpper(strings.TrimSpace(modelType))
	paramStr = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(paramStr), ")"))

	if modelType != "D" {
		return fmt.Errorf("unsupported model type: %s", modelType)
	}

	params := map[string]float64{
		"is":  1e-14, // Saturation current
		"n":   1.0,   // Emission coefficient
		"bv":  100.0, // Breakdown voltage
		"eg":  1.11,  // Energy gap
		"xti": 3.0,   // Saturation current temp exp
	}

	for _, pair := range strings.Fields(paramStr) {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		v, err := ParseValue(value)
		if err != nil {
			return fmt.Errorf("invalid parameter value %s: %v", pair, err)
		}
		params[strings.ToLower(name)] = v
	}

	netlistData.Models[modelName] = device.ModelParam{
		Type:   modelType,
		Name:   modelName,
		Params: params,
	}

	return nil
}

// Parse circuit element
func parseElement(line string) (*Element, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("invalid element format: %s", line)
	}

	elem := &Element{
		Name:   fields[0],
		Type:   strings.ToUpper(string(fields[0][0])),
		Params: make(map[string]string),
	}

	switch elem.Type {
	case "V", "I":
		return parseSource(elem, fields)

	case "U":
		return parseChip(elem, fields)

	case "W":
		elem.Nodes = fields[1:3]
		return elem, nil

	case "D":
		elem.Nodes = fields[1:3]
		if len(fields) > 3 {
			elem.Params["model"] = fields[3]
		}
		return elem, nil

	case "R", "C", "L":
		if len(fields) < 4 {
			return nil, fmt.Errorf("%s: missing value", elem.Name)
		}
		elem.Nodes = fields[1:3]
		value, err := ParseValue(fields[3])
		if err != nil {
			return nil, err
		}
		elem.Value = value
		for _, kv := range fields[4:] {
			key, val, ok := strings.Cut(kv, "=")
			if !ok {
				return nil, fmt.Errorf("%s: unexpected %q", elem.Name, kv)
			}
			elem.Params[strings.ToLower(key)] = val
		}
		return elem, nil
	}

	return nil, fmt.Errorf("unsupported device type: %s", elem.Type)
}

// parseSource handles "V1 n+ n- [DC] 5" and the SIN, PULSE, SQUARE and PWL
// forms, with or without parentheses.
func parseSource(elem *Element, fields []string) (*Element, error) {
	if len(fields) < 4 {
		return nil, fmt.Errorf("insufficient source parameters")
	}
	elem.Nodes = []string{fields[1], fields[2]}

	remaining := strings.Join(fields[3:], " ")
	remaining = strings.ReplaceAll(remaining, "(", " ( ") // Append whitespace around parentheses
	remaining = strings.ReplaceAll(remaining, ")", " ) ")
	words := strings.Fields(remaining)

	kind := strings.ToLower(words[0])
	switch kind {
	case "sin", "pulse", "square", "pwl":
		elem.Params["type"] = kind
		args := strings.Join(words[1:], " ")
		elem.Params[kind] = strings.TrimSpace(strings.Trim(args, "() "))

	default:
		if kind == "dc" {
			if len(words) < 2 {
				return nil, fmt.Errorf("missing DC value")
			}
			words = words[1:]
		}
		value, err := ParseValue(words[0])
		if err != nil {
			return nil, fmt.Errorf("unsupported source type: %s", words[0])
		}
		elem.Params["type"] = "dc"
		elem.Value = value
	}

	return elem, nil
}

// parseChip reads "U1 atmega328p sketch=blink D13=led GND=0 VCC=vcc".
func parseChip(elem *Element, fields []string) (*Element, error) {
	elem.Params["model"] = strings.ToLower(fields[1])
	for _, kv := range fields[2:] {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || key == "" || val == "" {
			return nil, fmt.Errorf("%s: want PIN=node or key=value, got %q", elem.Name, kv)
		}
		switch strings.ToLower(key) {
		case "sketch":
			elem.Params["sketch"] = val
		default:
			elem.Pins = append(elem.Pins, strings.ToUpper(key))
			elem.Nodes = append(elem.Nodes, val)
		}
	}
	return elem, nil
}

// ParseValue - Parse value and factor. 1k -> 1000
func ParseValue(val string) (float64, error) {
	matches := valueRe.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("invalid value format: %s", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	// factor
	if matches[2] != "" {
		num *= unitMap[matches[2]]
	}

	return num, nil
}

func parseSinParams(params string) (offset, amplitude, freq, phase float64, err error) {
	vals, err := parseFloats(params, 3, 4, "SIN")
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if len(vals) > 3 {
		phase = vals[3]
	}
	return vals[0], vals[1], vals[2], phase, nil
}

func parsePulseParams(params string) (v1, v2, delay, rise, fall, pWidth, period float64, err error) {
	vals, err := parseFloats(params, 7, 7, "PULSE")
	if err != nil {
		return 0, 0, 0, 0, 0, 0, 0, err
	}
	return vals[0], vals[1], vals[2], vals[3], vals[4], vals[5], vals[6], nil
}

// parseSquareParams reads offset, amplitude, frequency and an optional duty
// (default one half).
func parseSquareParams(params string) (offset, amplitude, freq, duty float64, err error) {
	vals, err := parseFloats(params, 3, 4, "SQUARE")
	if err != nil {
		return 0, 0, 0, 0, err
	}
	duty = 0.5
	if len(vals) > 3 {
		duty = vals[3]
	}
	return vals[0], vals[1], vals[2], duty, nil
}

func parsePWLParams(params string) (times []float64, values []float64, err error) {
	pwlParams := strings.Fields(params)
	if len(pwlParams) < 4 || len(pwlParams)%2 != 0 {
		return nil, nil, fmt.Errorf("insufficient or invalid PWL parameters, need pairs of time-value")
	}

	numPoints := len(pwlParams) / 2
	times = make([]float64, numPoints)
	values = make([]float64, numPoints)

	for i := range numPoints {
		// Time point
		times[i], err = ParseValue(pwlParams[2*i])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid PWL time[%d]: %v", i, err)
		}
		// Value point
		values[i], err = ParseValue(pwlParams[2*i+1])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid PWL value[%d]: %v", i, err)
		}

		if i > 0 && times[i] <= times[i-1] {
			return nil, nil, fmt.Errorf("PWL time points must be strictly increasing")
		}
	}

	return times, values, nil
}

func parseFloats(params string, least, most int, kind string) ([]float64, error) {
	words := strings.Fields(params)
	if len(words) < least || len(words) > most {
		return nil, fmt.Errorf("%s takes %d to %d parameters, got %d", kind, least, most, len(words))
	}
	vals := make([]float64, len(words))
	for i, w := range words {
		v, err := ParseValue(w)
		if err != nil {
			return nil, fmt.Errorf("invalid %s parameter %d: %v", kind, i+1, err)
		}
		vals[i] = v
	}
	return vals, nil
}
