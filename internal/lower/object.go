package lower

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"zkyulc/internal/ast"
	"zkyulc/internal/build"
	"zkyulc/internal/util"
)

// dependencyCacheSize bounds how many distinct factory-dependency object names LowerObject
// remembers as "already declared against this Builder". solc emits the same library/dependency
// object verbatim under every contract object that references it; a single compilation unit rarely
// nests more than a few dozen distinct dependencies, so this is generous headroom rather than a
// tight budget.
const dependencyCacheSize = 256

// LowerObject lowers one whole object tree (a compiled unit's constructor plus every object nested
// inside it, spec §4.5) into b, emitting one module. A builder carries a single mutable insert-point
// cursor, so every Object in this tree — the constructor and all of its "_deployed"/data-factory
// descendants — is lowered strictly sequentially against this one Builder (spec §5: "single-threaded
// cooperative lowering per builder instance"); see LowerBatch for the companion parallel path across
// independent compilation units.
func LowerObject(b build.Builder, root *ast.Object) (interface{}, error) {
	util.ListenLabel()
	if err := Validate(root); err != nil {
		return nil, err
	}

	sizes := make(map[string]uint64)
	collectDataSizes(root, sizes)

	seen, err := lru.New(dependencyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("object %q: %w", root.Name, err)
	}
	if err := lowerObjectTree(b, root, sizes, seen); err != nil {
		return nil, err
	}
	return b.Finish()
}

// LowerBatch lowers every one of roots into its own fresh Builder (produced by newBuilder), running
// up to threads of them concurrently. This is the parallel half of spec §5's split: "multiple
// contracts in parallel via separate builder instances" — grounded on the teacher's ir.Optimise,
// which fans independent top-level functions out across goroutines collected by a shared
// util.Perror (ir/optimise.go), generalized here to whole compilation units instead of a flat
// function list so no two goroutines ever touch the same Builder's insert-point cursor. Results are
// returned in the same order as roots.
func LowerBatch(newBuilder func() build.Builder, roots []*ast.Object, threads int) ([]interface{}, error) {
	results := make([]interface{}, len(roots))
	if len(roots) == 0 {
		return results, nil
	}
	if threads <= 1 || len(roots) == 1 {
		for i, root := range roots {
			out, err := LowerObject(newBuilder(), root)
			if err != nil {
				return nil, fmt.Errorf("object %q: %w", root.Name, err)
			}
			results[i] = out
		}
		return results, nil
	}

	t := threads
	if t > len(roots) {
		t = len(roots)
	}
	errs := newBatchErrors(t)
	wg := sync.WaitGroup{}
	wg.Add(len(roots))
	sem := make(chan struct{}, t)
	for i, root := range roots {
		go func(i int, root *ast.Object) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			out, err := LowerObject(newBuilder(), root)
			if err != nil {
				errs.report(fmt.Errorf("object %q: %w", root.Name, err))
				return
			}
			results[i] = out
		}(i, root)
	}
	wg.Wait()

	if first, ok := errs.first(); ok {
		return nil, first
	}
	return results, nil
}

// perrorCollector is the subset of util.NewPerror's return value (the teacher's own parallel error
// collector, kept as-is in internal/util/perror.go since its listen/stop/buffer mechanics are
// already exactly what LowerBatch needs) that batchErrors adapts; its concrete type is unexported,
// so this interface is what lets batchErrors name a field of that type at all.
type perrorCollector interface {
	Append(error)
	Stop()
	Len() int
	Errors() <-chan error
}

// batchErrors is a thin, domain-named adaptation of util's parallel error collector for the one
// thing this package ever collects: the first per-object lowering failure out of a batch of
// concurrently lowered compilation units.
type batchErrors struct {
	pe perrorCollector
}

func newBatchErrors(n int) *batchErrors {
	return &batchErrors{pe: util.NewPerror(n)}
}

// report records a failed object's error. A nil err is a no-op (the collector's own contract).
func (be *batchErrors) report(err error) { be.pe.Append(err) }

// first stops the collector and returns the first reported error, if any.
func (be *batchErrors) first() (error, bool) {
	be.pe.Stop()
	if be.pe.Len() == 0 {
		return nil, false
	}
	for e := range be.pe.Errors() {
		return e, true
	}
	return nil, false
}

// collectDataSizes walks the whole object tree once, before any IR is emitted, recording the byte
// length of every named Data blob so datasize("name") (expr.go's lowerDataBuiltin) can resolve
// against a complete table regardless of lowering order.
func collectDataSizes(o *ast.Object, out map[string]uint64) {
	for _, d := range o.Datas {
		out[d.Name] = uint64(len(d.Bytes))
	}
	for _, child := range o.Objects {
		collectDataSizes(child, out)
	}
}

// lowerObjectTree lowers o's own Code (if any) under name o.Name, then recurses sequentially into
// o's nested objects. The "_deployed" convention (spec §4.5) names a nested object whose Code is the
// runtime body as opposed to the constructor's — this core does not special-case that name, since
// nothing about lowering a Code block depends on whether it is a constructor's or not; that
// distinction only matters to the real linker stitching constructor-emitted bytecode to its runtime
// object, out of scope per spec's Non-goals.
//
// seen remembers every object name already declared against b (spec §2's domain-stack note on
// golang-lru): a factory-dependency object solc nests identically under several sibling contract
// objects in the same compilation unit is lowered once, not once per occurrence, so the second and
// further sightings don't trip DeclareFunction's duplicate-name error.
func lowerObjectTree(b build.Builder, o *ast.Object, sizes map[string]uint64, seen *lru.Cache) error {
	if _, dup := seen.Get(o.Name); dup {
		return nil
	}
	seen.Add(o.Name, struct{}{})

	if o.Code != nil {
		ctx := NewContext(b, sizes)
		if err := declareFunctions(ctx, o.Code.Block); err != nil {
			return fmt.Errorf("object %q: %w", o.Name, err)
		}
		fn, err := ctx.b.DeclareFunction(o.Name, 0, 0)
		if err != nil {
			return fmt.Errorf("object %q: %w", o.Name, err)
		}
		entry := ctx.b.AppendBlock(fn, "entry")
		ctx.setInsertPoint(fn, entry)
		ctx.pushScope()
		terminated, err := lowerBlock(ctx, o.Code.Block)
		ctx.popScope()
		if err != nil {
			return fmt.Errorf("object %q: %w", o.Name, err)
		}
		if !terminated {
			if err := ctx.b.Halt(ast.Stop, nil, nil); err != nil {
				return fmt.Errorf("object %q: %w", o.Name, err)
			}
		}
	}

	for _, child := range o.Objects {
		if err := lowerObjectTree(b, child, sizes, seen); err != nil {
			return err
		}
	}
	return nil
}
