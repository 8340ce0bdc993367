// Package jobfile parses the job description file (jobs.dsl).
//
// Labels start in column 0 and end with a colon; the lines indented below
// a label belong to it. The label ".conf" holds run parameters, every
// other label names a job:
//
//	# comment
//	.conf:
//	    chunkSize 500
//	    excludeModules Address, Registrar
//	nightly:
//	    apack group 182397
//	    apack query 4711 Person
package jobfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/rs/zerolog/log"

	"github.com/mpapi-go/mpapi/pkg/chunky"
)

// DefaultName is the job file looked up when none is given.
const DefaultName = "jobs.dsl"

// confLabel is the label of the parameter section.
const confLabel = ".conf"

// VerbPack downloads a seed query chunk by chunk.
const VerbPack = "apack"

// ErrUnknownJob is returned by Job for labels not in the file.
var ErrUnknownJob = errors.New("unknown job")

// ParseError reports a malformed line.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jobs file line %d: %s", e.Line, e.Message)
}

// Conf holds the values of the .conf section. Zero values and a nil
// ExcludeModules mean the parameter was not set.
type Conf struct {
	ChunkSize         int
	ParallelChunks    int
	ConcurrencyBudget int
	ExcludeModules    []string
}

// Command is one line of a job.
type Command struct {
	Verb string
	Seed chunky.SeedQuery
	Line int
}

// File is a parsed job file.
type File struct {
	Conf Conf
	jobs *orderedmap.OrderedMap[string, []Command]
}

// Jobs returns the job names in file order.
func (f *File) Jobs() []string {
	return f.jobs.Keys()
}

// Job returns the commands of job name.
func (f *File) Job(name string) ([]Command, error) {
	cmds, ok := f.jobs.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return cmds, nil
}

// ParseFile parses the job file at path.
func ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open jobs file: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// Parse reads a job file from r.
func Parse(r io.Reader) (*File, error) {
	f := &File{jobs: orderedmap.NewOrderedMap[string, []Command]()}

	scanner := bufio.NewScanner(r)
	label := ""
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		content, _, _ := strings.Cut(raw, "#")
		parts := strings.Fields(content)
		if len(parts) == 0 {
			continue
		}

		if raw[0] != ' ' && raw[0] != '\t' {
			name, err := parseLabel(parts, lineNo)
			if err != nil {
				return nil, err
			}
			if name != confLabel {
				if _, dup := f.jobs.Get(name); dup {
					return nil, &ParseError{Line: lineNo, Message: fmt.Sprintf("duplicate job %q", name)}
				}
				f.jobs.Set(name, nil)
			}
			label = name
			continue
		}

		switch label {
		case "":
			return nil, &ParseError{Line: lineNo, Message: "indented entry outside of a label"}
		case confLabel:
			if err := f.Conf.set(parts, lineNo); err != nil {
				return nil, err
			}
		default:
			cmd, err := parseCommand(parts, lineNo)
			if err != nil {
				return nil, err
			}
			cmds, _ := f.jobs.Get(label)
			f.jobs.Set(label, append(cmds, cmd))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	return f, nil
}

func parseLabel(parts []string, line int) (string, error) {
	if len(parts) != 1 || !strings.HasSuffix(parts[0], ":") {
		return "", &ParseError{Line: line, Message: fmt.Sprintf("label must be a single word ending with a colon, got %q", strings.Join(parts, " "))}
	}
	name := strings.TrimSuffix(parts[0], ":")
	if name == "" {
		return "", &ParseError{Line: line, Message: "empty label"}
	}
	if strings.EqualFold(name, confLabel) {
		return confLabel, nil
	}
	return name, nil
}

func parseCommand(parts []string, line int) (Command, error) {
	if parts[0] != VerbPack {
		return Command{}, &ParseError{Line: line, Message: fmt.Sprintf("unknown command %q", parts[0])}
	}
	seed, err := chunky.ParseSeedQuery(strings.Join(parts[1:], " "))
	if err != nil {
		return Command{}, &ParseError{Line: line, Message: err.Error()}
	}
	return Command{Verb: parts[0], Seed: seed, Line: line}, nil
}

func (c *Conf) set(parts []string, line int) error {
	key, args := parts[0], parts[1:]
	switch key {
	case "chunkSize", "parallelChunks", "concurrencyBudget":
		if len(args) != 1 {
			return &ParseError{Line: line, Message: fmt.Sprintf("%s takes one value", key)}
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return &ParseError{Line: line, Message: fmt.Sprintf("%s must be a positive integer, got %q", key, args[0])}
		}
		switch key {
		case "chunkSize":
			c.ChunkSize = n
		case "parallelChunks":
			c.ParallelChunks = n
		default:
			c.ConcurrencyBudget = n
		}
	case "excludeModules":
		modules := []string{}
		for _, m := range strings.Split(strings.Join(args, " "), ",") {
			if m = strings.TrimSpace(m); m != "" {
				modules = append(modules, m)
			}
		}
		c.ExcludeModules = modules
	default:
		log.Warn().Int("line", line).Str("key", key).Msg("Ignoring unknown config value")
	}
	return nil
}
