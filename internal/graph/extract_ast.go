package graph

import (
	"regexp"
	"strings"

	"github.com/agent-brain/agentbrain/internal/chunk"
)

// Extraction is the accumulated result of extracting entities and triples
// from a batch of chunks.
type Extraction struct {
	Entities []*Entity
	Triples  []*Triple
}

func (e *Extraction) addEntity(ent *Entity) *Entity {
	e.Entities = append(e.Entities, ent)
	return ent
}

func (e *Extraction) addTriple(subject, object *Entity, pred Predicate, sourceChunkID string) {
	e.Triples = append(e.Triples, &Triple{
		Subject:       subject.ID,
		Predicate:     pred,
		Object:        object.ID,
		SourceChunkID: sourceChunkID,
	})
}

var importLineRE = regexp.MustCompile(`["']([\w./\-]+)["']`)

// ExtractAST deterministically derives entities and triples from a chunk's
// symbols and import context: no model call, purely structural, grounded
// on vjache-cie's cie_defines/cie_calls edges (emitted here as Triples
// instead of Datalog facts).
func ExtractAST(c *chunk.Chunk) *Extraction {
	ext := &Extraction{}

	module := NewEntity(c.FilePath, EntityModule)
	ext.addEntity(module)

	for _, sym := range c.Symbols {
		entType := entityTypeForSymbol(sym.Type)
		if entType == "" {
			continue
		}
		ent := NewEntity(sym.Name, entType)
		ext.addEntity(ent)
		ext.addTriple(module, ent, PredContains, c.ID)
		ext.addTriple(ent, module, PredDefinedIn, c.ID)

		if extends := parentFromSignature(sym.Signature); extends != "" {
			parent := NewEntity(extends, EntityClass)
			ext.addEntity(parent)
			ext.addTriple(ent, parent, PredExtends, c.ID)
		}
	}

	for _, path := range extractImports(c.Context) {
		imported := NewEntity(path, EntityModule)
		ext.addEntity(imported)
		ext.addTriple(module, imported, PredImports, c.ID)
	}

	return ext
}

func entityTypeForSymbol(t chunk.SymbolType) EntityType {
	switch t {
	case chunk.SymbolTypeFunction, chunk.SymbolTypeMethod:
		return EntityFunction
	case chunk.SymbolTypeClass, chunk.SymbolTypeInterface, chunk.SymbolTypeType:
		return EntityClass
	case chunk.SymbolTypeModule:
		return EntityModule
	case chunk.SymbolTypeVariable, chunk.SymbolTypeConstant:
		return EntityVariable
	default:
		return ""
	}
}

// parentFromSignature pulls a base class/interface name out of common
// "class Foo extends Bar" / "class Foo implements Bar" / "class Foo(Bar)"
// signature shapes. Best-effort: returns "" when no parent is recognizable;
// Go struct embedding ("type Foo struct { Bar }") is not recognized.
func parentFromSignature(sig string) string {
	sig = strings.TrimSpace(sig)
	for _, kw := range []string{"extends ", "implements "} {
		if idx := strings.Index(sig, kw); idx >= 0 {
			rest := strings.TrimSpace(sig[idx+len(kw):])
			return firstIdentifier(rest)
		}
	}
	if idx := strings.Index(sig, "("); idx >= 0 && strings.HasPrefix(sig, "class ") {
		rest := sig[idx+1:]
		if end := strings.IndexAny(rest, ",)"); end >= 0 {
			name := strings.TrimSpace(rest[:end])
			if name != "" && name != "object" {
				return name
			}
		}
	}
	return ""
}

func firstIdentifier(s string) string {
	end := strings.IndexAny(s, " {(,")
	if end < 0 {
		end = len(s)
	}
	return strings.TrimSpace(s[:end])
}

// extractImports finds quoted module paths in an import/context block.
func extractImports(context string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(context, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "import") && !strings.HasPrefix(line, "from ") && !strings.HasPrefix(line, "\"") {
			continue
		}
		for _, m := range importLineRE.FindAllStringSubmatch(line, -1) {
			path := m[1]
			if _, ok := seen[path]; !ok {
				seen[path] = struct{}{}
				out = append(out, path)
			}
		}
	}
	return out
}
