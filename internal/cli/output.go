// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// jwtworkbench is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jhahn/jwtworkbench/internal/claims"
	"github.com/jhahn/jwtworkbench/internal/store"
	"github.com/jhahn/jwtworkbench/internal/tokencodec"
	"github.com/jhahn/jwtworkbench/internal/vault"
	cryptojwt "github.com/jhahn/jwtworkbench/pkg/encoding/jwt"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output. When format is JSON, every Print* call
// is the sole thing written to the writer: no other command output may
// precede or follow it, so scripts parsing --json output see exactly one
// value.
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": true, "message": message})
	}
	fmt.Fprintln(p.writer, message)
	return nil
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": false, "error": err.Error()})
	}
	fmt.Fprintf(p.writer, "Error: %v\n", err)
	return nil
}

// PrintToken prints an encoded JWT, optionally with the token record it
// was saved under.
func (p *Printer) PrintToken(token string, savedTokenID string) error {
	if p.format == OutputFormatJSON {
		data := map[string]any{"ok": true, "data": map[string]any{"token": token}}
		if savedTokenID != "" {
			data["data"].(map[string]any)["token_id"] = savedTokenID
		}
		return p.printJSON(data)
	}
	fmt.Fprintln(p.writer, token)
	if savedTokenID != "" {
		fmt.Fprintf(p.writer, "saved as token %s\n", savedTokenID)
	}
	return nil
}

// PrintDecoded prints a decode/inspect result. verified indicates whether
// the caller also ran signature verification; when false the text output is
// headed by an [UNVERIFIED] label (JSON carries "verified":false) so a user
// cannot mistake inspection for trust.
func (p *Printer) PrintDecoded(decoded *tokencodec.Decoded, verified bool) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": true, "data": map[string]any{
			"header":   decoded.Header,
			"payload":  decoded.Payload,
			"alg":      decoded.Alg,
			"kid":      decoded.Kid,
			"verified": verified,
		}})
	}
	label := "UNVERIFIED"
	if verified {
		label = "VERIFIED"
	}
	fmt.Fprintf(p.writer, "[%s]\n", label)
	fmt.Fprintln(p.writer, "Header:")
	p.printIndentedJSON(decoded.Header)
	fmt.Fprintln(p.writer, "Payload:")
	p.printIndentedJSON(decoded.Payload)
	return nil
}

// PrintHeaderOnly prints just a token's header, for the header-only inspect
// path that tolerates a non-JSON payload.
func (p *Printer) PrintHeaderOnly(header map[string]any, alg cryptojwt.Algorithm, kid string) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": true, "data": map[string]any{
			"header":   header,
			"alg":      alg,
			"kid":      kid,
			"verified": false,
		}})
	}
	fmt.Fprintln(p.writer, "[UNVERIFIED]")
	fmt.Fprintln(p.writer, "Header:")
	p.printIndentedJSON(header)
	return nil
}

// PrintVerifyResult prints the outcome of a verify command, including the
// claim trace when non-empty.
func (p *Printer) PrintVerifyResult(result *vault.VerifyResult, verifyErr error) error {
	if p.format == OutputFormatJSON {
		data := map[string]any{
			"valid":       result.Valid,
			"used_key_id": result.UsedKeyID,
			"trace":       result.ClaimTrace,
		}
		if result.Decoded != nil {
			data["header"] = result.Decoded.Header
			data["payload"] = result.Decoded.Payload
		}
		if verifyErr != nil {
			return p.printJSON(map[string]any{"ok": false, "data": data, "error": verifyErr.Error()})
		}
		return p.printJSON(map[string]any{"ok": true, "data": data})
	}
	if result.Valid {
		fmt.Fprintln(p.writer, "VALID")
	} else {
		fmt.Fprintf(p.writer, "INVALID: %v\n", verifyErr)
	}
	if result.UsedKeyID != "" {
		fmt.Fprintf(p.writer, "used key: %s\n", result.UsedKeyID)
	}
	for _, step := range result.ClaimTrace {
		status := "pass"
		if !step.Passed {
			status = "fail"
		}
		fmt.Fprintf(p.writer, "  %-4s %-12s %s\n", status, step.Check, step.Detail)
	}
	return nil
}

// PrintSegments prints a token's three compact-serialization segments.
func (p *Printer) PrintSegments(seg tokencodec.Segments) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": true, "data": map[string]string{
			"header":    seg.HeaderB64,
			"payload":   seg.PayloadB64,
			"signature": seg.SignatureB64,
		}})
	}
	fmt.Fprintln(p.writer, seg.HeaderB64)
	fmt.Fprintln(p.writer, seg.PayloadB64)
	fmt.Fprintln(p.writer, seg.SignatureB64)
	return nil
}

// PrintProject prints a single project.
func (p *Printer) PrintProject(project *vault.Project) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": true, "data": project})
	}
	fmt.Fprintf(p.writer, "%s\t%s\t%s\n", project.ID, project.Name, project.DefaultKeyID)
	return nil
}

// PrintProjectList prints a table or JSON array of projects.
func (p *Printer) PrintProjectList(projects []*vault.Project) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": true, "data": projects})
	}
	if len(projects) == 0 {
		fmt.Fprintln(p.writer, "no projects")
		return nil
	}
	fmt.Fprintf(p.writer, "%-36s %-24s %-36s\n", "ID", "NAME", "DEFAULT KEY")
	fmt.Fprintln(p.writer, strings.Repeat("-", 98))
	for _, proj := range projects {
		fmt.Fprintf(p.writer, "%-36s %-24s %-36s\n", proj.ID, proj.Name, proj.DefaultKeyID)
	}
	return nil
}

// PrintKeyList prints a table or JSON array of keys. Secret material is
// never included; only RevealKey callers see raw bytes.
func (p *Printer) PrintKeyList(keys []*vault.Key) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": true, "data": keys})
	}
	if len(keys) == 0 {
		fmt.Fprintln(p.writer, "no keys")
		return nil
	}
	fmt.Fprintf(p.writer, "%-36s %-20s %-8s %s\n", "ID", "NAME", "KIND", "ALGORITHMS")
	fmt.Fprintln(p.writer, strings.Repeat("-", 90))
	for _, k := range keys {
		fmt.Fprintf(p.writer, "%-36s %-20s %-8s %s\n", k.ID, k.Name, k.Kind, strings.Join(k.Algorithms, ","))
	}
	return nil
}

// PrintKey prints a single key.
func (p *Printer) PrintKey(k *vault.Key) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": true, "data": k})
	}
	fmt.Fprintf(p.writer, "id:         %s\n", k.ID)
	fmt.Fprintf(p.writer, "project_id: %s\n", k.ProjectID)
	fmt.Fprintf(p.writer, "name:       %s\n", k.Name)
	fmt.Fprintf(p.writer, "kind:       %s\n", k.Kind)
	fmt.Fprintf(p.writer, "algorithms: %s\n", strings.Join(k.Algorithms, ","))
	return nil
}

// PrintRevealedKey prints raw key material. Callers must gate this behind
// an explicit confirmation before invoking it.
func (p *Printer) PrintRevealedKey(material []byte) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": true, "data": map[string]string{"material": string(material)}})
	}
	fmt.Fprintln(p.writer, string(material))
	return nil
}

// PrintTokenList prints a table or JSON array of vault-managed tokens.
func (p *Printer) PrintTokenList(tokens []*vault.Token) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": true, "data": tokens})
	}
	if len(tokens) == 0 {
		fmt.Fprintln(p.writer, "no tokens")
		return nil
	}
	fmt.Fprintf(p.writer, "%-36s %-20s %-10s\n", "ID", "NAME", "ALGORITHM")
	fmt.Fprintln(p.writer, strings.Repeat("-", 70))
	for _, t := range tokens {
		fmt.Fprintf(p.writer, "%-36s %-20s %-10s\n", t.ID, t.Name, t.Algorithm)
	}
	return nil
}

// PrintTokenRecord prints a single token record.
func (p *Printer) PrintTokenRecord(t *vault.Token) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": true, "data": t})
	}
	fmt.Fprintf(p.writer, "id:         %s\n", t.ID)
	fmt.Fprintf(p.writer, "project_id: %s\n", t.ProjectID)
	fmt.Fprintf(p.writer, "key_id:     %s\n", t.KeyID)
	fmt.Fprintf(p.writer, "name:       %s\n", t.Name)
	fmt.Fprintf(p.writer, "algorithm:  %s\n", t.Algorithm)
	return nil
}

// PrintClaimRules prints the effective claim rules a verify/split
// invocation resolved, for --explain style debugging.
func (p *Printer) PrintClaimRules(rules claims.Rules) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": true, "data": rules})
	}
	fmt.Fprintf(p.writer, "leeway:            %s\n", rules.Leeway)
	fmt.Fprintf(p.writer, "expected_issuer:   %s\n", rules.ExpectedIssuer)
	fmt.Fprintf(p.writer, "expected_subject:  %s\n", rules.ExpectedSubject)
	fmt.Fprintf(p.writer, "expected_audience: %s\n", strings.Join(rules.ExpectedAudience, ","))
	fmt.Fprintf(p.writer, "require:           %s\n", strings.Join(rules.Require, ","))
	return nil
}

// PrintRestoreReport prints the outcome of a vault import.
func (p *Printer) PrintRestoreReport(report *store.RestoreReport) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"ok": true, "data": report})
	}
	fmt.Fprintf(p.writer, "projects imported: %d\n", report.ProjectsImported)
	fmt.Fprintf(p.writer, "keys imported:     %d\n", report.KeysImported)
	fmt.Fprintf(p.writer, "tokens imported:   %d\n", report.TokensImported)
	fmt.Fprintf(p.writer, "skipped:           %d\n", report.Skipped)
	return nil
}

func (p *Printer) printIndentedJSON(v any) {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data any) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
