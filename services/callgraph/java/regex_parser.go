// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package java

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Declaration and member patterns. All matching runs over comment-stripped
// text so offsets and line numbers line up with the original source.
var (
	packageRe = regexp.MustCompile(`(?m)^\s*package\s+([\w.]+)\s*;`)

	importRe = regexp.MustCompile(`(?m)^\s*import\s+(static\s+)?([\w.]+(?:\.\*)?)\s*;`)

	typeDeclRe = regexp.MustCompile(
		`(?:^|[\s;}])((?:(?:public|protected|private|abstract|final|static|strictfp|sealed|non-sealed)\s+)*)(class|interface|enum|record)\s+([A-Za-z_]\w*)`)

	fieldRe = regexp.MustCompile(
		`(?:^|[;{}\s])((?:(?:public|protected|private|static|final|transient|volatile)\s+)+)([A-Za-z_][\w.<>\[\],?\s]*?)\s+([A-Za-z_]\w*)\s*(=|;)`)

	methodRe = regexp.MustCompile(
		`(?:^|[;{}\s])((?:(?:public|protected|private|static|final|abstract|synchronized|native|default|strictfp)\s+)*)(?:<[\w\s,?&.<>\[\]]*>\s*)?([A-Za-z_][\w.<>\[\],?\s&]*?)\s+([A-Za-z_]\w*)\s*\(`)

	constructorRe = regexp.MustCompile(
		`(?:^|[;{}\s])(?:(?:public|protected|private)\s+)([A-Z]\w*)\s*\(`)

	methodTailRe = regexp.MustCompile(`^\s*(?:throws\s+[\w.,\s]+?)?\s*([;{])`)
)

// Call-site patterns, applied in priority order over a method body with
// comments stripped and literal contents blanked.
var (
	enumCallRe = regexp.MustCompile(
		`\b([A-Z]\w*)\s*\.\s*([A-Z][A-Z0-9_]*)\s*\.\s*([a-z]\w*)\s*\(`)

	chainStartRe = regexp.MustCompile(
		`\b((?:this\s*\.\s*)?[A-Za-z_]\w*)\s*\.\s*([A-Za-z_]\w*)\s*\(`)

	staticCallRe = regexp.MustCompile(
		`\b([A-Z]\w*)\s*\.\s*([A-Za-z_]\w*)\s*\(`)

	instanceCallRe = regexp.MustCompile(
		`\b((?:this\s*\.\s*)?[a-z_]\w*(?:\s*\.\s*[a-z_]\w*)*)\s*\.\s*([A-Za-z_]\w*)\s*\(`)

	constructorCallRe = regexp.MustCompile(
		`\bnew\s+([A-Z]\w*)\s*(?:<[^>()]*>)?\s*\(`)

	directCallRe = regexp.MustCompile(
		`\b([A-Za-z_]\w*)\s*\(`)

	chainHopRe = regexp.MustCompile(`^\s*\.\s*([A-Za-z_]\w*)\s*\(`)
)

// RegexParserOption configures a RegexParser instance.
type RegexParserOption func(*RegexParser)

// WithRegexMaxFileSize sets the maximum file size the parser will accept.
//
// Parameters:
//   - bytes: Maximum file size in bytes. Must be positive.
func WithRegexMaxFileSize(bytes int64) RegexParserOption {
	return func(p *RegexParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// RegexParser implements the Parser interface with pattern heuristics.
//
// Description:
//
//	RegexParser reconstructs declarations and call sites without a real
//	grammar: brace counting locates bodies, ordered pattern passes
//	classify call sites, and a camel-case heuristic separates static
//	receivers from variables. It accepts any input and never fails on
//	malformed Java; what it cannot recognize it silently skips.
//
// Thread Safety:
//
//	RegexParser instances are safe for concurrent use. Parse keeps all
//	state in local values.
type RegexParser struct {
	maxFileSize int64
}

// NewRegexParser creates a new RegexParser with the given options.
//
// Outputs:
//   - *RegexParser: Configured parser instance, never nil.
func NewRegexParser(opts ...RegexParserOption) *RegexParser {
	p := &RegexParser{
		maxFileSize: DefaultMaxFileSize,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the parser's stable identifier.
func (p *RegexParser) Name() string { return "regex" }

// Extensions returns the file extensions this parser handles.
func (p *RegexParser) Extensions() []string { return []string{".java"} }

// Parse extracts declarations and call sites from Java source.
//
// Description:
//
//	Runs the full pipeline: strip comments, read the package and import
//	section, locate every type declaration with brace counting, then
//	extract fields, methods, and per-method call sites. Syntactically
//	broken declarations are recorded in SourceFile.Errors and skipped.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after extraction.
//   - content: Raw Java source bytes. Must be valid UTF-8.
//   - filePath: Path for the result and for log/trace attribution.
//
// Outputs:
//   - *SourceFile: Extracted model. Never nil on success.
//   - error: ErrFileTooLarge, ErrInvalidContent, or a context error.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *RegexParser) Parse(ctx context.Context, content []byte, filePath string) (*SourceFile, error) {
	ctx, span := startParseSpan(ctx, p.Name(), filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(p.Name(), time.Since(start), 0, err)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		err := fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
		recordParseMetrics(p.Name(), time.Since(start), 0, err)
		return nil, err
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		err := fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
		recordParseMetrics(p.Name(), time.Since(start), 0, err)
		return nil, err
	}

	hash := sha256.Sum256(content)

	result := &SourceFile{
		Path:          filePath,
		Hash:          hex.EncodeToString(hash[:]),
		ParsedAtMilli: time.Now().UnixMilli(),
		Imports:       NewImportTable(),
		Classes:       make([]ClassModel, 0, 1),
		Errors:        make([]string, 0),
	}

	clean := stripComments(string(content))
	lines := newLineIndex(clean)

	p.extractPackage(clean, result)
	p.extractImports(clean, lines, result)
	p.extractTypes(clean, lines, filePath, result)

	if err := ctx.Err(); err != nil {
		recordParseMetrics(p.Name(), time.Since(start), 0, err)
		return nil, fmt.Errorf("parse canceled after extraction: %w", err)
	}

	totalSites := 0
	for i := range result.Classes {
		for j := range result.Classes[i].Methods {
			totalSites += len(result.Classes[i].Methods[j].CallSites)
		}
	}
	setParseSpanResult(span, len(result.Classes), totalSites, len(result.Errors))
	recordParseMetrics(p.Name(), time.Since(start), len(result.Classes), nil)

	return result, nil
}

// extractPackage reads the package declaration, if any.
func (p *RegexParser) extractPackage(clean string, result *SourceFile) {
	if m := packageRe.FindStringSubmatch(clean); m != nil {
		result.Package = m[1]
	}
}

// extractImports reads the import section into the file's import table.
func (p *RegexParser) extractImports(clean string, lines *lineIndex, result *SourceFile) {
	for _, m := range importRe.FindAllStringSubmatchIndex(clean, -1) {
		isStatic := m[2] >= 0
		path := clean[m[4]:m[5]]
		line := lines.lineOf(m[0])
		if isStatic {
			result.Imports.AddStatic(path, line)
		} else {
			result.Imports.AddPlain(path, line)
		}
	}
}

// typeDecl is the located span of one type declaration in the clean text.
type typeDecl struct {
	kind      string // class, interface, enum, record
	name      string
	modifiers string
	header    string // text between the name and the body brace
	declStart int
	bodyOpen  int // offset of '{', -1 for bodyless declarations
	bodyClose int // offset of matching '}', -1 when unclosed
}

// extractTypes locates every type declaration and builds its ClassModel.
func (p *RegexParser) extractTypes(clean string, lines *lineIndex, filePath string, result *SourceFile) {
	decls := p.locateTypeDecls(clean, result)

	for _, d := range decls {
		model := ClassModel{
			Name:        d.name,
			Package:     result.Package,
			SourcePath:  filePath,
			IsInterface: d.kind == "interface",
			IsAbstract:  strings.Contains(d.modifiers, "abstract"),
		}

		p.parseTypeHeader(d, &model)

		if d.kind == "record" {
			p.parseRecordComponents(d.header, &model)
		}

		if d.bodyOpen >= 0 && d.bodyClose > d.bodyOpen {
			body := clean[d.bodyOpen+1 : d.bodyClose]
			bodyBase := d.bodyOpen + 1
			depths := braceDepths(body)

			p.extractFields(body, depths, &model)
			p.extractMethods(body, depths, bodyBase, lines, result.Imports, &model)
		}

		result.Classes = append(result.Classes, model)
	}
}

// locateTypeDecls finds declaration headers and their body spans.
func (p *RegexParser) locateTypeDecls(clean string, result *SourceFile) []typeDecl {
	var decls []typeDecl

	for _, m := range typeDeclRe.FindAllStringSubmatchIndex(clean, -1) {
		d := typeDecl{
			modifiers: clean[m[2]:m[3]],
			kind:      clean[m[4]:m[5]],
			name:      clean[m[6]:m[7]],
			declStart: m[4],
			bodyOpen:  -1,
			bodyClose: -1,
		}

		// Scan from the name to the body brace, tolerating generic
		// parameter sections and record component lists on the way.
		angle, paren := 0, 0
		headerStart := m[7]
	scan:
		for i := m[7]; i < len(clean); i++ {
			switch clean[i] {
			case '<':
				angle++
			case '>':
				angle--
			case '(':
				paren++
			case ')':
				paren--
			case '{':
				if angle <= 0 && paren <= 0 {
					d.header = clean[headerStart:i]
					d.bodyOpen = i
					break scan
				}
			case ';':
				if angle <= 0 && paren <= 0 {
					d.header = clean[headerStart:i]
					break scan
				}
			}
		}

		if d.bodyOpen >= 0 {
			d.bodyClose = matchBrace(clean, d.bodyOpen)
			if d.bodyClose < 0 {
				result.Errors = append(result.Errors,
					fmt.Sprintf("unclosed body for type %s", d.name))
				continue
			}
		}

		decls = append(decls, d)
	}

	return decls
}

// parseTypeHeader reads extends/implements clauses out of a declaration header.
// For interfaces, every extended interface lands in Interfaces and the first
// one doubles as the superclass reference for hierarchy walks.
func (p *RegexParser) parseTypeHeader(d typeDecl, model *ClassModel) {
	header := d.header

	extendsText := clauseText(header, "extends")
	implementsText := clauseText(header, "implements")

	if model.IsInterface {
		supers := splitCommaList(extendsText)
		model.Interfaces = append(model.Interfaces, supers...)
		if len(supers) > 0 {
			model.SuperClass = supers[0]
		}
		return
	}

	if extendsText != "" {
		parts := splitCommaList(extendsText)
		if len(parts) > 0 {
			model.SuperClass = parts[0]
		}
	}
	model.Interfaces = append(model.Interfaces, splitCommaList(implementsText)...)
}

// parseRecordComponents turns a record's component list into fields.
func (p *RegexParser) parseRecordComponents(header string, model *ClassModel) {
	open := strings.IndexByte(header, '(')
	if open < 0 {
		return
	}
	end := matchParen(header, open)
	if end < 0 {
		return
	}

	for _, comp := range splitCommaList(header[open+1 : end]) {
		fields := strings.Fields(comp)
		if len(fields) < 2 {
			continue
		}
		model.Fields = append(model.Fields, FieldModel{
			Name:         fields[len(fields)-1],
			DeclaredType: strings.Join(fields[:len(fields)-1], " "),
		})
	}
}

// extractFields reads member field declarations at class-body depth.
func (p *RegexParser) extractFields(body string, depths []int, model *ClassModel) {
	for _, m := range fieldRe.FindAllStringSubmatchIndex(body, -1) {
		declStart := m[2]
		if depths[declStart] != 0 {
			continue
		}

		declType := strings.TrimSpace(body[m[4]:m[5]])
		name := body[m[6]:m[7]]
		if declType == "" || isKeyword(name) {
			continue
		}
		// Multi-declarator statements confuse the type group; keep the
		// first declarator's type only.
		if idx := strings.IndexByte(declType, ','); idx >= 0 && !strings.ContainsAny(declType, "<") {
			declType = strings.TrimSpace(declType[:idx])
		}

		model.Fields = append(model.Fields, FieldModel{
			Name:         name,
			DeclaredType: declType,
		})
	}
}

// extractMethods reads method and constructor declarations at class-body
// depth, locating each body by brace matching and extracting its call sites.
func (p *RegexParser) extractMethods(body string, depths []int, bodyBase int, lines *lineIndex, imports *ImportTable, model *ClassModel) {
	taken := make(map[int]bool) // open-paren offsets already consumed

	for _, m := range methodRe.FindAllStringSubmatchIndex(body, -1) {
		if depths[m[2]] != 0 {
			continue
		}

		returnType := strings.TrimSpace(body[m[4]:m[5]])
		name := body[m[6]:m[7]]
		openParen := m[1] - 1

		if isKeyword(name) {
			continue
		}
		// "new Foo(" must not read as method Foo with return type new.
		if returnType == "new" || strings.HasSuffix(returnType, " new") {
			continue
		}

		method, ok := p.buildMethod(body, bodyBase, lines, imports, model, name, returnType, openParen, false)
		if !ok {
			continue
		}
		taken[openParen] = true
		model.Methods = append(model.Methods, method)
	}

	for _, m := range constructorRe.FindAllStringSubmatchIndex(body, -1) {
		if depths[m[2]] != 0 {
			continue
		}

		name := body[m[2]:m[3]]
		openParen := m[1] - 1
		if name != model.Name || taken[openParen] {
			continue
		}

		method, ok := p.buildMethod(body, bodyBase, lines, imports, model, ConstructorName, "", openParen, true)
		if !ok {
			continue
		}
		model.Methods = append(model.Methods, method)
	}
}

// buildMethod assembles one MethodModel from a located declaration.
func (p *RegexParser) buildMethod(body string, bodyBase int, lines *lineIndex, imports *ImportTable, model *ClassModel, name, returnType string, openParen int, isCtor bool) (MethodModel, bool) {
	closeParen := matchParen(body, openParen)
	if closeParen < 0 {
		return MethodModel{}, false
	}

	tail := methodTailRe.FindStringSubmatchIndex(body[closeParen+1:])
	if tail == nil {
		return MethodModel{}, false
	}

	method := MethodModel{
		Name:          name,
		Class:         model.Name,
		SourcePath:    model.SourcePath,
		Line:          lines.lineOf(bodyBase + openParen),
		Parameters:    parameterTypes(body[openParen+1 : closeParen]),
		ReturnType:    returnType,
		IsConstructor: isCtor,
	}

	terminator := closeParen + 1 + tail[2]
	if body[terminator] == '{' {
		bodyClose := matchBrace(body, terminator)
		if bodyClose > terminator {
			method.CallSites = p.extractCallSites(
				body[terminator+1:bodyClose], bodyBase+terminator+1, lines, imports)
		}
	}

	return method, true
}

// extractCallSites runs the ordered pattern passes over one method body.
//
// Description:
//
//	Literal contents are blanked first so patterns cannot fire inside
//	strings. Passes run highest-priority first; each claims the byte
//	span of receiver, method name, and opening parenthesis, so lower
//	passes skip text already classified while calls nested in argument
//	lists remain visible. Bare calls whose name matches a static import
//	are promoted to the static-import kind at the end.
//
// Inputs:
//   - body: Method body with comments already stripped.
//   - absBase: Offset of body's first byte in the whole file.
//   - lines: Whole-file line index.
//   - imports: The file's import table, for static-import promotion.
//
// Outputs:
//   - []CallSite: Sites in source order, de-duplicated by receiver,
//     method, and line with the higher-priority kind winning.
func (p *RegexParser) extractCallSites(body string, absBase int, lines *lineIndex, imports *ImportTable) []CallSite {
	blank := blankStrings(body)
	acc := newSiteAccumulator()

	p.passEnumCalls(blank, absBase, lines, acc)
	p.passChains(blank, absBase, lines, acc)
	p.passStaticCalls(blank, absBase, lines, acc)
	p.passInstanceCalls(blank, absBase, lines, acc)
	p.passConstructorCalls(blank, absBase, lines, acc)
	p.passDirectCalls(blank, absBase, lines, acc)

	sites := acc.result()
	for i := range sites {
		if sites[i].Kind == CallDirect {
			if _, ok := imports.StaticTarget(sites[i].Method); ok {
				sites[i].Kind = CallStaticImport
			}
		}
	}
	return sites
}

// passEnumCalls extracts EnumType.CONSTANT.method() sites.
func (p *RegexParser) passEnumCalls(body string, absBase int, lines *lineIndex, acc *siteAccumulator) {
	for _, m := range enumCallRe.FindAllStringSubmatchIndex(body, -1) {
		if precededByDot(body, m[0]) {
			continue
		}
		open := m[1] - 1
		acc.claim(m[0], open+1)
		acc.add(CallSite{
			Receiver:  body[m[4]:m[5]],
			Method:    body[m[6]:m[7]],
			Kind:      CallEnumConstant,
			Line:      lines.lineOf(absBase + m[0]),
			ArgCount:  argCountAt(body, open),
			EnumClass: body[m[2]:m[3]],
		}, m[0])
	}
}

// passChains extracts multi-hop chained calls, one site per hop. Single-hop
// matches are left for the static/instance passes.
func (p *RegexParser) passChains(body string, absBase int, lines *lineIndex, acc *siteAccumulator) {
	for _, m := range chainStartRe.FindAllStringSubmatchIndex(body, -1) {
		start := m[0]
		if acc.overlapsClaimed(start, m[1]) || precededByDot(body, start) {
			continue
		}

		// "this" is a legitimate chain root ("this.a().b()"); other
		// keywords are control flow the start pattern caught by accident.
		root := compactExpr(body[m[2]:m[3]])
		if root != "this" && isKeyword(root) {
			continue
		}

		type hop struct {
			method   string
			nameOff  int
			open     int
			close    int
			headFrom int // claim start for this hop
		}

		first := hop{
			method:   body[m[4]:m[5]],
			nameOff:  m[4],
			open:     m[1] - 1,
			headFrom: start,
		}
		first.close = matchParen(body, first.open)
		if first.close < 0 {
			continue
		}

		hops := []hop{first}
		pos := first.close + 1
		for len(hops) < MaxChainHops {
			hm := chainHopRe.FindStringSubmatchIndex(body[pos:])
			if hm == nil {
				break
			}
			h := hop{
				method:   body[pos+hm[2] : pos+hm[3]],
				nameOff:  pos + hm[2],
				open:     pos + hm[1] - 1,
				headFrom: pos + hm[0],
			}
			h.close = matchParen(body, h.open)
			if h.close < 0 {
				break
			}
			hops = append(hops, h)
			pos = h.close + 1
		}

		if len(hops) < 2 {
			continue
		}

		receiver := root
		chainText := ""
		for _, h := range hops {
			if chainText == "" {
				chainText = root + "." + h.method + "()"
			} else {
				receiver = chainText
				chainText = chainText + "." + h.method + "()"
			}
			acc.claim(h.headFrom, h.open+1)
			acc.add(CallSite{
				Receiver:  receiver,
				Method:    h.method,
				Kind:      CallChain,
				Line:      lines.lineOf(absBase + h.nameOff),
				ArgCount:  countArguments(body[h.open+1 : h.close]),
				ChainText: chainText,
			}, h.headFrom)
		}
	}
}

// passStaticCalls extracts ClassName.method() sites using the camel-case
// receiver heuristic.
func (p *RegexParser) passStaticCalls(body string, absBase int, lines *lineIndex, acc *siteAccumulator) {
	for _, m := range staticCallRe.FindAllStringSubmatchIndex(body, -1) {
		open := m[1] - 1
		if acc.overlapsClaimed(m[0], open+1) || precededByDot(body, m[0]) {
			continue
		}

		receiver := body[m[2]:m[3]]
		if !looksLikeClassName(receiver) {
			continue
		}

		acc.claim(m[0], open+1)
		acc.add(CallSite{
			Receiver: receiver,
			Method:   body[m[4]:m[5]],
			Kind:     CallStatic,
			Line:     lines.lineOf(absBase + m[0]),
			ArgCount: argCountAt(body, open),
		}, m[0])
	}
}

// passInstanceCalls extracts variable.method() sites, including dotted and
// this-qualified receivers.
func (p *RegexParser) passInstanceCalls(body string, absBase int, lines *lineIndex, acc *siteAccumulator) {
	for _, m := range instanceCallRe.FindAllStringSubmatchIndex(body, -1) {
		open := m[1] - 1
		if acc.overlapsClaimed(m[0], open+1) || precededByDot(body, m[0]) {
			continue
		}

		receiver := compactExpr(body[m[2]:m[3]])
		kind := CallInstance
		if receiver == "this" {
			// this.foo() is a call on the own class, same as bare foo().
			receiver = ""
			kind = CallDirect
		} else if isKeyword(receiver) {
			continue
		}

		acc.claim(m[0], open+1)
		acc.add(CallSite{
			Receiver: receiver,
			Method:   body[m[4]:m[5]],
			Kind:     kind,
			Line:     lines.lineOf(absBase + m[0]),
			ArgCount: argCountAt(body, open),
		}, m[0])
	}
}

// passConstructorCalls extracts new ClassName(...) sites.
func (p *RegexParser) passConstructorCalls(body string, absBase int, lines *lineIndex, acc *siteAccumulator) {
	for _, m := range constructorCallRe.FindAllStringSubmatchIndex(body, -1) {
		open := m[1] - 1
		if acc.overlapsClaimed(m[0], open+1) {
			continue
		}

		acc.claim(m[0], open+1)
		acc.add(CallSite{
			Receiver: body[m[2]:m[3]],
			Method:   ConstructorName,
			Kind:     CallConstructor,
			Line:     lines.lineOf(absBase + m[0]),
			ArgCount: argCountAt(body, open),
		}, m[0])
	}
}

// passDirectCalls extracts bare method() sites. Names preceded by a dot
// belong to qualified calls from earlier passes; names preceded by '@' are
// annotations, not calls.
func (p *RegexParser) passDirectCalls(body string, absBase int, lines *lineIndex, acc *siteAccumulator) {
	for _, m := range directCallRe.FindAllStringSubmatchIndex(body, -1) {
		nameStart := m[2]
		open := m[1] - 1
		if acc.overlapsClaimed(nameStart, open+1) {
			continue
		}
		if nameStart > 0 && (body[nameStart-1] == '.' || body[nameStart-1] == '@') {
			continue
		}

		name := body[m[2]:m[3]]
		if isKeyword(name) || looksLikeClassName(name) {
			continue
		}

		acc.claim(nameStart, open+1)
		acc.add(CallSite{
			Method:   name,
			Kind:     CallDirect,
			Line:     lines.lineOf(absBase + nameStart),
			ArgCount: argCountAt(body, open),
		}, nameStart)
	}
}

// argCountAt counts the arguments of the call whose '(' is at open.
func argCountAt(body string, open int) int {
	close := matchParen(body, open)
	if close < 0 {
		return 0
	}
	return countArguments(body[open+1 : close])
}

// precededByDot reports whether the last significant character before
// offset is a dot, meaning the match continues an expression handled by an
// earlier pass.
func precededByDot(body string, offset int) bool {
	for i := offset - 1; i >= 0; i-- {
		c := body[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		return c == '.'
	}
	return false
}

// compactExpr removes whitespace from a matched receiver expression so
// "this . svc" renders as "this.svc".
func compactExpr(expr string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, expr)
}

// clauseText returns the text of an extends/implements clause, stopping at
// the next clause keyword at angle-bracket depth zero.
func clauseText(header, keyword string) string {
	depth := 0
	fields := strings.Fields(header)
	start := -1
	var parts []string
	for i, f := range fields {
		if depth == 0 && f == keyword && start < 0 {
			start = i + 1
			continue
		}
		if start >= 0 && depth == 0 && (f == "extends" || f == "implements" || f == "permits") {
			break
		}
		if start >= 0 && i >= start {
			parts = append(parts, f)
		}
		depth += strings.Count(f, "<") - strings.Count(f, ">")
	}
	if start < 0 {
		return ""
	}
	return strings.Join(parts, " ")
}

// splitCommaList splits a type list on commas outside angle brackets.
func splitCommaList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var out []string
	depth := 0
	begin := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				if part := strings.TrimSpace(s[begin:i]); part != "" {
					out = append(out, part)
				}
				begin = i + 1
			}
		}
	}
	if part := strings.TrimSpace(s[begin:]); part != "" {
		out = append(out, part)
	}
	return out
}

// parameterTypes extracts declared parameter types from a parameter list.
// Annotations and the final varargs ellipsis are dropped; the parameter
// name is the last whitespace-separated token.
func parameterTypes(params string) []string {
	parts := splitCommaList(params)
	if len(parts) == 0 {
		return nil
	}

	types := make([]string, 0, len(parts))
	for _, part := range parts {
		fields := strings.Fields(part)
		var kept []string
		for _, f := range fields {
			if strings.HasPrefix(f, "@") || f == "final" {
				continue
			}
			kept = append(kept, f)
		}
		if len(kept) < 2 {
			continue
		}
		t := strings.Join(kept[:len(kept)-1], " ")
		t = strings.TrimSuffix(t, "...")
		types = append(types, strings.TrimSpace(t))
	}
	return types
}

// braceDepths returns, per byte offset, the brace depth at that offset
// relative to the start of the text. Literal contents do not affect depth.
func braceDepths(body string) []int {
	depths := make([]int, len(body)+1)
	depth := 0
	inString := false
	inChar := false
	for i := 0; i < len(body); i++ {
		depths[i] = depth
		c := body[i]
		switch {
		case inString:
			if c == '\\' {
				if i+1 < len(body) {
					depths[i+1] = depth
					i++
				}
			} else if c == '"' {
				inString = false
			}
		case inChar:
			if c == '\\' {
				if i+1 < len(body) {
					depths[i+1] = depth
					i++
				}
			} else if c == '\'' {
				inChar = false
			}
		case c == '"':
			inString = true
		case c == '\'':
			inChar = true
		case c == '{':
			depth++
		case c == '}':
			depth--
		}
	}
	depths[len(body)] = depth
	return depths
}
