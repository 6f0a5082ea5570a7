package sat

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SATSolution lists the literals of a model, one per variable, in DIMACS form.
type SATSolution []int64

// SAT is a CNF instance in DIMACS numbering: variables are 1..Variables and a negative
// literal is the negation of its variable.
type SAT struct {
	Variables uint64
	Clauses   [][]int64
}

// NewVariable allocates a fresh variable and returns its positive literal.
func (s *SAT) NewVariable() int64 {
	s.Variables++
	return int64(s.Variables)
}

func (s *SAT) AddClause(literals ...int64) {
	s.Clauses = append(s.Clauses, literals)
}

func (s SAT) ToDIMACS() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "p cnf %d %d\n", s.Variables, len(s.Clauses))
	for _, clause := range s.Clauses {
		for _, literal := range clause {
			fmt.Fprintf(&builder, "%d ", literal)
		}
		builder.WriteString("0\n")
	}
	return builder.String()
}

// Satisfies reports whether the solution is consistent and satisfies every clause.
func (s SAT) Satisfies(solution SATSolution) bool {
	literals := make(map[int64]bool, len(solution))
	for _, literal := range solution {
		if literals[literal] || literals[-literal] {
			return false
		}
		literals[literal] = true
	}

	for _, clause := range s.Clauses {
		satisfied := false
		for _, literal := range clause {
			if literals[literal] {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// ParseDIMACS reads a DIMACS-CNF document. Clauses may span several lines.
func ParseDIMACS(reader io.Reader) (SAT, error) {
	var sat SAT
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	clause := make([]int64, 0)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// Skip comments
		if line == "" || strings.HasPrefix(line, "c") || strings.HasPrefix(line, "%") {
			continue
		}
		// Problem line
		if strings.HasPrefix(line, "p") {
			parts := strings.Fields(line)
			if len(parts) != 4 || parts[1] != "cnf" {
				return SAT{}, fmt.Errorf("invalid problem line: %s", line)
			}
			variables, err := strconv.ParseUint(parts[2], 10, 64)
			if err != nil {
				return SAT{}, fmt.Errorf("invalid variable count: %w", err)
			}
			sat.Variables = variables
			continue
		}

		for _, field := range strings.Fields(line) {
			literal, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return SAT{}, fmt.Errorf("invalid literal '%s': %w", field, err)
			}
			if literal == 0 {
				sat.Clauses = append(sat.Clauses, clause)
				clause = make([]int64, 0)
				continue
			}
			if variable := uint64(max(literal, -literal)); variable > sat.Variables {
				return SAT{}, fmt.Errorf("literal %d exceeds the declared %d variables", literal, sat.Variables)
			}
			clause = append(clause, literal)
		}
	}
	if err := scanner.Err(); err != nil {
		return SAT{}, fmt.Errorf("error reading DIMACS: %w", err)
	}
	if len(clause) > 0 {
		sat.Clauses = append(sat.Clauses, clause)
	}
	return sat, nil
}
