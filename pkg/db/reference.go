package db

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/yumyai/varquery/pkg/model"
)

// ReferenceGenome is a FASTA file indexed with samtools faidx.
type ReferenceGenome struct {
	Fasta string
	// ChromLengths comes from the .fai index and bounds region bins.
	ChromLengths map[string]int
}

func NewReferenceGenome(fasta string) (*ReferenceGenome, error) {
	required := []string{
		fasta,
		fasta + ".fai",
	}

	var errs error
	for _, file := range required {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			errs = fmt.Errorf("%w: %s", os.ErrNotExist, file)
		}
	}
	if errs != nil {
		return nil, errs
	}

	lengths, err := readFaidx(fasta + ".fai")
	if err != nil {
		return nil, err
	}
	return &ReferenceGenome{Fasta: fasta, ChromLengths: lengths}, nil
}

// readFaidx reads the NAME and LENGTH columns of a samtools index.
func readFaidx(path string) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lengths := map[string]int{}
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: expected name and length", path, line)
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		lengths[fields[0]] = n
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lengths, nil
}

// Fetch returns the FASTA records of the regions, with the study id
// prepended to every header.
func (ref *ReferenceGenome) Fetch(ctx context.Context, study string, regions ...model.Region) ([]byte, error) {
	if len(regions) == 0 {
		return nil, fmt.Errorf("no region requested")
	}
	for _, region := range regions {
		if _, ok := ref.ChromLengths[region.Chrom]; !ok {
			return nil, fmt.Errorf("%w: chromosome %s", os.ErrNotExist, region.Chrom)
		}
	}

	var cmd *exec.Cmd
	if len(regions) == 1 {
		// samtools faidx genome.fa chr1:100-200
		cmd = exec.CommandContext(ctx, "samtools", "faidx", ref.Fasta, regions[0].String())
	} else {
		// Input for samtools ( stdin ), one region per line
		var input bytes.Buffer
		for _, region := range regions {
			input.WriteString(region.String())
			input.WriteString("\n")
		}
		cmd = exec.CommandContext(ctx, "samtools", "faidx", ref.Fasta, "-r", "-")
		cmd.Stdin = &input
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		// Will be print to output (due to stderr.)
		return nil, fmt.Errorf("%s - %s", err, output)
	}
	return labelFasta(output, study), nil
}

// labelFasta turns ">chr1:1-10" headers into ">study|chr1:1-10".
func labelFasta(input []byte, study string) []byte {
	if study == "" {
		return input
	}
	var output bytes.Buffer
	for _, line := range bytes.SplitAfter(input, []byte("\n")) {
		if bytes.HasPrefix(line, []byte(">")) {
			output.WriteString(">" + study + "|")
			output.Write(line[1:])
			continue
		}
		output.Write(line)
	}
	return output.Bytes()
}
