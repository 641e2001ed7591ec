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
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	tsjava "github.com/smacker/go-tree-sitter/java"
)

// Tree-sitter Java grammar node types used by SitterParser.
const (
	javaNodePackage       = "package_declaration"
	javaNodeImport        = "import_declaration"
	javaNodeClass         = "class_declaration"
	javaNodeInterface     = "interface_declaration"
	javaNodeEnum          = "enum_declaration"
	javaNodeRecord        = "record_declaration"
	javaNodeField         = "field_declaration"
	javaNodeMethod        = "method_declaration"
	javaNodeConstructor   = "constructor_declaration"
	javaNodeInvocation    = "method_invocation"
	javaNodeCreation      = "object_creation_expression"
	javaNodeFieldAccess   = "field_access"
	javaNodeIdentifier    = "identifier"
	javaNodeThis          = "this"
	javaNodeSuper         = "super"
	javaNodeEnumBodyDecls = "enum_body_declarations"
	javaNodeExtendsIfaces = "extends_interfaces"
	javaNodeModifiers     = "modifiers"
)

// SitterParserOption configures a SitterParser instance.
type SitterParserOption func(*SitterParser)

// WithSitterMaxFileSize sets the maximum file size the parser will accept.
//
// Parameters:
//   - bytes: Maximum file size in bytes. Must be positive.
func WithSitterMaxFileSize(bytes int64) SitterParserOption {
	return func(p *SitterParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// SitterParser implements the Parser interface with a real Java grammar.
//
// Description:
//
//	SitterParser parses source with tree-sitter and extracts declarations
//	and call sites from the syntax tree instead of pattern heuristics. It
//	classifies receivers from node structure, so casts, generics in odd
//	places, and multi-line expressions do not confuse it the way they can
//	confuse RegexParser. It is error-tolerant and returns partial results
//	for syntactically invalid code.
//
// Thread Safety:
//
//	SitterParser instances are safe for concurrent use. Each Parse call
//	creates its own tree-sitter parser instance internally.
type SitterParser struct {
	maxFileSize int64
}

// NewSitterParser creates a new SitterParser with the given options.
func NewSitterParser(opts ...SitterParserOption) *SitterParser {
	p := &SitterParser{
		maxFileSize: DefaultMaxFileSize,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the parser's stable identifier.
func (p *SitterParser) Name() string { return "treesitter" }

// Extensions returns the file extensions this parser handles.
func (p *SitterParser) Extensions() []string { return []string{".java"} }

// Parse extracts declarations and call sites from Java source.
//
// Description:
//
//	Parses the content with tree-sitter and walks the resulting tree:
//	package and imports first, then every type declaration with its
//	fields, methods, and per-method-body call sites. Syntax errors are
//	recorded in SourceFile.Errors; extraction continues around them.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//     Tree-sitter parsing itself cannot be interrupted mid-parse.
//   - content: Raw Java source bytes. Must be valid UTF-8.
//   - filePath: Path for the result and for log/trace attribution.
//
// Outputs:
//   - *SourceFile: Extracted model. Never nil on success.
//   - error: ErrFileTooLarge, ErrInvalidContent, a tree-sitter failure,
//     or a context error.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *SitterParser) Parse(ctx context.Context, content []byte, filePath string) (*SourceFile, error) {
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

	if !utf8.Valid(content) {
		err := fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
		recordParseMetrics(p.Name(), time.Since(start), 0, err)
		return nil, err
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(tsjava.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(p.Name(), time.Since(start), 0, err)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(p.Name(), time.Since(start), 0, err)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	result := &SourceFile{
		Path:          filePath,
		Hash:          hex.EncodeToString(hash[:]),
		ParsedAtMilli: time.Now().UnixMilli(),
		Imports:       NewImportTable(),
		Classes:       make([]ClassModel, 0, 1),
		Errors:        make([]string, 0),
	}

	root := tree.RootNode()
	if root == nil {
		result.Errors = append(result.Errors, "tree-sitter returned nil root node")
		return result, nil
	}
	if root.HasError() {
		result.Errors = append(result.Errors, "source contains syntax errors")
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case javaNodePackage:
			result.Package = p.packageName(child, content)
		case javaNodeImport:
			p.processImport(child, content, result)
		case javaNodeClass, javaNodeInterface, javaNodeEnum, javaNodeRecord:
			p.processType(child, content, filePath, result)
		}
	}

	// Resolve bare calls against the static-import table now that the
	// whole import section is known.
	totalSites := 0
	for i := range result.Classes {
		for j := range result.Classes[i].Methods {
			sites := result.Classes[i].Methods[j].CallSites
			for k := range sites {
				if sites[k].Kind == CallDirect {
					if _, ok := result.Imports.StaticTarget(sites[k].Method); ok {
						sites[k].Kind = CallStaticImport
					}
				}
			}
			totalSites += len(sites)
		}
	}

	setParseSpanResult(span, len(result.Classes), totalSites, len(result.Errors))
	recordParseMetrics(p.Name(), time.Since(start), len(result.Classes), nil)

	return result, nil
}

// packageName reads the dotted package path from a package declaration.
func (p *SitterParser) packageName(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		if child.Type() == "scoped_identifier" || child.Type() == javaNodeIdentifier {
			return nodeText(child, content)
		}
	}
	return ""
}

// processImport records one import declaration in the file's import table.
func (p *SitterParser) processImport(node *sitter.Node, content []byte, result *SourceFile) {
	isStatic := false
	path := ""
	wildcard := false

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "static":
			isStatic = true
		case "scoped_identifier", javaNodeIdentifier:
			path = nodeText(child, content)
		case "asterisk":
			wildcard = true
		}
	}

	if path == "" {
		return
	}
	if wildcard {
		path += ".*"
	}
	line := int(node.StartPoint().Row + 1)
	if isStatic {
		result.Imports.AddStatic(path, line)
	} else {
		result.Imports.AddPlain(path, line)
	}
}

// processType builds a ClassModel from one type declaration and recurses
// into nested type declarations, appending them after the outer type.
func (p *SitterParser) processType(node *sitter.Node, content []byte, filePath string, result *SourceFile) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}

	model := ClassModel{
		Name:        nodeText(nameNode, content),
		Package:     result.Package,
		SourcePath:  filePath,
		IsInterface: node.Type() == javaNodeInterface,
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil && child.Type() == javaNodeModifiers {
			model.IsAbstract = strings.Contains(nodeText(child, content), "abstract")
		}
	}

	switch node.Type() {
	case javaNodeClass:
		if sc := node.ChildByFieldName("superclass"); sc != nil && sc.NamedChildCount() > 0 {
			model.SuperClass = singleSpace(nodeText(sc.NamedChild(0), content))
		}
		model.Interfaces = p.interfaceList(node.ChildByFieldName("interfaces"), content)
	case javaNodeInterface:
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child != nil && child.Type() == javaNodeExtendsIfaces {
				model.Interfaces = p.interfaceList(child, content)
			}
		}
		if len(model.Interfaces) > 0 {
			model.SuperClass = model.Interfaces[0]
		}
	case javaNodeEnum:
		model.Interfaces = p.interfaceList(node.ChildByFieldName("interfaces"), content)
	case javaNodeRecord:
		if params := node.ChildByFieldName("parameters"); params != nil {
			p.recordComponents(params, content, &model)
		}
		model.Interfaces = p.interfaceList(node.ChildByFieldName("interfaces"), content)
	}

	var nested []*sitter.Node
	if body := node.ChildByFieldName("body"); body != nil {
		nested = p.processBody(body, content, filePath, &model)
	}

	result.Classes = append(result.Classes, model)

	for _, n := range nested {
		p.processType(n, content, filePath, result)
	}
}

// interfaceList flattens a super_interfaces or extends_interfaces node into
// raw type reference texts.
func (p *SitterParser) interfaceList(node *sitter.Node, content []byte) []string {
	if node == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		if child.Type() == "type_list" {
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if t := child.NamedChild(j); t != nil {
					out = append(out, singleSpace(nodeText(t, content)))
				}
			}
		} else {
			out = append(out, singleSpace(nodeText(child, content)))
		}
	}
	return out
}

// recordComponents turns a record's component list into fields.
func (p *SitterParser) recordComponents(params *sitter.Node, content []byte, model *ClassModel) {
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		if param == nil || param.Type() != "formal_parameter" {
			continue
		}
		typeNode := param.ChildByFieldName("type")
		nameNode := param.ChildByFieldName("name")
		if typeNode == nil || nameNode == nil {
			continue
		}
		model.Fields = append(model.Fields, FieldModel{
			Name:         nodeText(nameNode, content),
			DeclaredType: singleSpace(nodeText(typeNode, content)),
		})
	}
}

// processBody extracts fields, methods, and constructors from a type body.
// Nested type declarations are returned for the caller to process so they
// become their own ClassModels instead of members of the outer type.
func (p *SitterParser) processBody(body *sitter.Node, content []byte, filePath string, model *ClassModel) []*sitter.Node {
	var nested []*sitter.Node

	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case javaNodeField:
			p.processField(child, content, model)
		case javaNodeMethod:
			if m, ok := p.buildMethod(child, content, model, false); ok {
				model.Methods = append(model.Methods, m)
			}
		case javaNodeConstructor:
			if m, ok := p.buildMethod(child, content, model, true); ok {
				model.Methods = append(model.Methods, m)
			}
		case javaNodeEnumBodyDecls:
			nested = append(nested, p.processBody(child, content, filePath, model)...)
		case javaNodeClass, javaNodeInterface, javaNodeEnum, javaNodeRecord:
			nested = append(nested, child)
		}
	}

	return nested
}

// processField appends one FieldModel per declarator in a field declaration.
func (p *SitterParser) processField(node *sitter.Node, content []byte, model *ClassModel) {
	typeNode := node.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	declType := singleSpace(nodeText(typeNode, content))

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil || child.Type() != "variable_declarator" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		model.Fields = append(model.Fields, FieldModel{
			Name:         nodeText(nameNode, content),
			DeclaredType: declType,
		})
	}
}

// buildMethod assembles one MethodModel from a method or constructor node.
func (p *SitterParser) buildMethod(node *sitter.Node, content []byte, model *ClassModel, isCtor bool) (MethodModel, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return MethodModel{}, false
	}

	name := nodeText(nameNode, content)
	if isCtor {
		name = ConstructorName
	}

	method := MethodModel{
		Name:          name,
		Class:         model.Name,
		SourcePath:    model.SourcePath,
		Line:          int(nameNode.StartPoint().Row + 1),
		IsConstructor: isCtor,
	}

	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		method.ReturnType = singleSpace(nodeText(typeNode, content))
	}

	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			param := params.NamedChild(i)
			if param == nil {
				continue
			}
			typeNode := param.ChildByFieldName("type")
			if typeNode == nil && param.NamedChildCount() > 0 {
				typeNode = param.NamedChild(0) // spread_parameter
			}
			if typeNode != nil {
				method.Parameters = append(method.Parameters, singleSpace(nodeText(typeNode, content)))
			}
		}
	}

	if bodyNode := node.ChildByFieldName("body"); bodyNode != nil {
		method.CallSites = p.extractCallSites(bodyNode, content)
	}

	return method, true
}

// extractCallSites walks a method body and collects call sites.
//
// Description:
//
//	Invocation nodes whose receiver is itself an invocation are grouped
//	into chains and emitted hop by hop with cumulative chain text, the
//	same shape RegexParser produces. Everything else is classified from
//	node structure: bare and this-qualified calls are direct, camel-case
//	identifier receivers are static, field accesses over an enum-looking
//	constant are enum-constant calls, and remaining receivers are
//	instance calls. Calls nested in argument lists are extracted on
//	their own.
func (p *SitterParser) extractCallSites(body *sitter.Node, content []byte) []CallSite {
	acc := newSiteAccumulator()
	p.visitCalls(body, content, acc)
	return acc.result()
}

// visitCalls recursively extracts call sites from one AST node.
func (p *SitterParser) visitCalls(node *sitter.Node, content []byte, acc *siteAccumulator) {
	if node == nil {
		return
	}

	switch node.Type() {
	case javaNodeInvocation:
		p.processInvocation(node, content, acc)
		return
	case javaNodeCreation:
		p.processCreation(node, content, acc)
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		p.visitCalls(node.NamedChild(i), content, acc)
	}
}

// processInvocation emits sites for an invocation and its whole chain.
func (p *SitterParser) processInvocation(node *sitter.Node, content []byte, acc *siteAccumulator) {
	// Collect the chain innermost-first by following object links.
	var hops []*sitter.Node
	cur := node
	for cur != nil && cur.Type() == javaNodeInvocation && len(hops) < MaxChainHops {
		hops = append(hops, cur)
		cur = cur.ChildByFieldName("object")
	}
	for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
		hops[i], hops[j] = hops[j], hops[i]
	}
	root := cur

	// Arguments of every hop hold their own calls.
	for _, hop := range hops {
		if args := hop.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				p.visitCalls(args.NamedChild(i), content, acc)
			}
		}
	}
	// A computed chain root (creation, cast, parenthesized call) holds
	// calls of its own; plain identifiers and field accesses do not.
	if root != nil {
		switch root.Type() {
		case javaNodeIdentifier, javaNodeFieldAccess, javaNodeThis, javaNodeSuper:
		default:
			p.visitCalls(root, content, acc)
		}
	}

	if len(hops) >= 2 {
		p.emitChain(hops, root, content, acc)
		return
	}

	p.emitSingle(node, root, content, acc)
}

// emitChain records one site per hop with cumulative chain text.
func (p *SitterParser) emitChain(hops []*sitter.Node, root *sitter.Node, content []byte, acc *siteAccumulator) {
	rootText := ""
	if root != nil {
		rootText = p.renderReceiver(root, content)
	}

	receiver := rootText
	chainText := ""
	for _, hop := range hops {
		nameNode := hop.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		method := nodeText(nameNode, content)

		if chainText == "" {
			if rootText == "" {
				chainText = method + "()"
			} else {
				chainText = rootText + "." + method + "()"
			}
		} else {
			receiver = chainText
			chainText = chainText + "." + method + "()"
		}

		acc.add(CallSite{
			Receiver:  receiver,
			Method:    method,
			Kind:      CallChain,
			Line:      int(nameNode.StartPoint().Row + 1),
			ArgCount:  argumentCount(hop),
			ChainText: chainText,
		}, int(nameNode.StartByte()))
	}
}

// emitSingle classifies and records a one-hop invocation.
func (p *SitterParser) emitSingle(node, object *sitter.Node, content []byte, acc *siteAccumulator) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	method := nodeText(nameNode, content)
	line := int(nameNode.StartPoint().Row + 1)
	offset := int(nameNode.StartByte())
	args := argumentCount(node)

	if object == nil {
		acc.add(CallSite{
			Method:   method,
			Kind:     CallDirect,
			Line:     line,
			ArgCount: args,
		}, offset)
		return
	}

	switch object.Type() {
	case javaNodeThis:
		acc.add(CallSite{
			Method:   method,
			Kind:     CallDirect,
			Line:     line,
			ArgCount: args,
		}, offset)
	case javaNodeSuper:
		// Parent implementations are reached through the hierarchy walk,
		// not recorded as sites.
	case javaNodeIdentifier:
		receiver := nodeText(object, content)
		kind := CallInstance
		if looksLikeClassName(receiver) {
			kind = CallStatic
		}
		acc.add(CallSite{
			Receiver: receiver,
			Method:   method,
			Kind:     kind,
			Line:     line,
			ArgCount: args,
		}, offset)
	case javaNodeFieldAccess:
		p.emitFieldAccessCall(object, method, line, offset, args, content, acc)
	case javaNodeCreation:
		receiver := p.renderReceiver(object, content)
		acc.add(CallSite{
			Receiver:  receiver,
			Method:    method,
			Kind:      CallChain,
			Line:      line,
			ArgCount:  args,
			ChainText: receiver + "." + method + "()",
		}, offset)
	default:
		acc.add(CallSite{
			Receiver: p.renderReceiver(object, content),
			Method:   method,
			Kind:     CallInstance,
			Line:     line,
			ArgCount: args,
		}, offset)
	}
}

// emitFieldAccessCall classifies a call whose receiver is a field access:
// an enum-constant call when it reads ClassName.CONSTANT, otherwise an
// instance call with the dotted receiver preserved.
func (p *SitterParser) emitFieldAccessCall(object *sitter.Node, method string, line, offset, args int, content []byte, acc *siteAccumulator) {
	objNode := object.ChildByFieldName("object")
	fieldNode := object.ChildByFieldName("field")

	if objNode != nil && fieldNode != nil &&
		objNode.Type() == javaNodeIdentifier {
		outer := nodeText(objNode, content)
		constant := nodeText(fieldNode, content)
		if looksLikeClassName(outer) && isScreamingCase(constant) {
			acc.add(CallSite{
				Receiver:  constant,
				Method:    method,
				Kind:      CallEnumConstant,
				Line:      line,
				ArgCount:  args,
				EnumClass: outer,
			}, offset)
			return
		}
	}

	acc.add(CallSite{
		Receiver: compactExpr(nodeText(object, content)),
		Method:   method,
		Kind:     CallInstance,
		Line:     line,
		ArgCount: args,
	}, offset)
}

// processCreation records a constructor site and recurses into arguments.
// Anonymous class bodies are not descended into; their methods do not run
// as part of the enclosing method's flow.
func (p *SitterParser) processCreation(node *sitter.Node, content []byte, acc *siteAccumulator) {
	typeNode := node.ChildByFieldName("type")
	if typeNode != nil {
		typeName := StripGenerics(singleSpace(nodeText(typeNode, content)))
		if dot := strings.LastIndexByte(typeName, '.'); dot >= 0 {
			typeName = typeName[dot+1:]
		}
		acc.add(CallSite{
			Receiver: typeName,
			Method:   ConstructorName,
			Kind:     CallConstructor,
			Line:     int(typeNode.StartPoint().Row + 1),
			ArgCount: argumentCount(node),
		}, int(typeNode.StartByte()))
	}

	if args := node.ChildByFieldName("arguments"); args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			p.visitCalls(args.NamedChild(i), content, acc)
		}
	}
}

// renderReceiver renders a receiver expression in the normalized form used
// for chain text: identifiers and field accesses verbatim, invocations and
// creations with empty argument lists.
func (p *SitterParser) renderReceiver(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case javaNodeIdentifier, javaNodeThis, javaNodeSuper:
		return nodeText(node, content)
	case javaNodeFieldAccess:
		return compactExpr(nodeText(node, content))
	case javaNodeInvocation:
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			return ""
		}
		method := nodeText(nameNode, content)
		if obj := node.ChildByFieldName("object"); obj != nil {
			return p.renderReceiver(obj, content) + "." + method + "()"
		}
		return method + "()"
	case javaNodeCreation:
		if typeNode := node.ChildByFieldName("type"); typeNode != nil {
			return "new " + StripGenerics(singleSpace(nodeText(typeNode, content))) + "()"
		}
		return "new()"
	default:
		return compactExpr(nodeText(node, content))
	}
}

// argumentCount returns the number of arguments of a call node.
func argumentCount(node *sitter.Node) int {
	args := node.ChildByFieldName("arguments")
	if args == nil {
		return 0
	}
	return int(args.NamedChildCount())
}

// nodeText safely extracts the source text for a node.
func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	if int(node.EndByte()) > len(content) {
		return ""
	}
	return node.Content(content)
}

// singleSpace collapses all whitespace runs to single spaces and trims.
func singleSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isScreamingCase reports whether the identifier is ALL_CAPS with optional
// digits and underscores, the shape of an enum constant.
func isScreamingCase(ident string) bool {
	if ident == "" {
		return false
	}
	for i := 0; i < len(ident); i++ {
		c := ident[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return ident[0] >= 'A' && ident[0] <= 'Z'
}
