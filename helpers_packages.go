// scriptcomplete/helpers_packages.go
// Contains the go/packages backed finder for Go types named in the bindings file.
package scriptcomplete

import (
	"context"
	"errors"
	"fmt"
	"go/types"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/tools/go/packages"
)

// packageLoadTimeout bounds a shared load that outlives its callers.
const packageLoadTimeout = 2 * time.Minute

// PackageMethodFinder lists the method set of a named Go type loaded from
// source with go/packages. Loaded packages are kept for the finder's lifetime.
type PackageMethodFinder struct {
	dir    string
	logger *slog.Logger

	loadSFG singleflight.Group

	mu     sync.Mutex
	gen    uint64
	loaded map[string]*types.Package
}

// NewPackageMethodFinder creates a finder that resolves import paths relative to dir
// (the process working directory when empty).
func NewPackageMethodFinder(dir string, logger *slog.Logger) *PackageMethodFinder {
	if logger == nil {
		logger = slog.Default()
	}
	return &PackageMethodFinder{
		dir:    dir,
		logger: logger.With("component", "PackageMethodFinder"),
		loaded: make(map[string]*types.Package),
	}
}

// FindMethods implements MethodFinder.
func (f *PackageMethodFinder) FindMethods(ctx context.Context, desc TypeDescriptor, prefix string) ([]MethodDescriptor, error) {
	if desc.PkgPath == "" || desc.Name == "" {
		return nil, fmt.Errorf("%w: package descriptor needs a path and a name (%s)", ErrUnknownType, desc.Key())
	}
	pkg, err := f.load(ctx, desc.PkgPath)
	if err != nil {
		return nil, err
	}
	obj, ok := pkg.Scope().Lookup(desc.Name).(*types.TypeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no type %s", ErrUnknownType, desc.PkgPath, desc.Name)
	}

	t := obj.Type()
	if _, isIface := t.Underlying().(*types.Interface); !isIface {
		t = types.NewPointer(t)
	}
	mset := types.NewMethodSet(t)
	unqualified := func(*types.Package) string { return "" }

	var out []MethodDescriptor
	for i := 0; i < mset.Len(); i++ {
		fn, ok := mset.At(i).Obj().(*types.Func)
		if !ok || !fn.Exported() || !matchesMemberPrefix(fn.Name(), prefix) {
			continue
		}
		sig, ok := fn.Type().(*types.Signature)
		if !ok {
			continue
		}
		ret := ""
		if sig.Results().Len() > 0 {
			ret = types.TypeString(sig.Results().At(0).Type(), unqualified)
		}
		out = append(out, MethodDescriptor{Name: fn.Name(), ParameterCount: sig.Params().Len(), ReturnType: ret})
	}
	return out, nil
}

// load returns the cached package or joins a single shared load of pkgPath.
// The shared load is detached from the callers' contexts so one caller's
// cancellation never fails the others; each caller stops waiting on its own ctx.
func (f *PackageMethodFinder) load(ctx context.Context, pkgPath string) (*types.Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	pkg, ok := f.loaded[pkgPath]
	gen := f.gen
	f.mu.Unlock()
	if ok {
		return pkg, nil
	}

	ch := f.loadSFG.DoChan(pkgPath, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), packageLoadTimeout)
		defer cancel()
		loadedPkg, err := f.loadFromSource(loadCtx, pkgPath)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		if f.gen == gen {
			f.loaded[pkgPath] = loadedPkg
		}
		f.mu.Unlock()
		return loadedPkg, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*types.Package), nil
	}
}

func (f *PackageMethodFinder) loadFromSource(ctx context.Context, pkgPath string) (*types.Package, error) {
	loadLogger := f.logger.With("pkg", pkgPath)
	cfg := &packages.Config{
		Context: ctx,
		Dir:     f.dir,
		Mode:    packages.NeedName | packages.NeedTypes,
		Logf:    func(format string, args ...interface{}) { loadLogger.Debug(fmt.Sprintf(format, args...)) },
	}
	loadLogger.Debug("Calling packages.Load")
	pkgs, err := packages.Load(cfg, pkgPath)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrPackageLoad, pkgPath, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("%w: %s: no packages returned", ErrPackageLoad, pkgPath)
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		loadErrs := make([]error, 0, len(pkg.Errors))
		for _, e := range pkg.Errors {
			loadErrs = append(loadErrs, e)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrPackageLoad, pkgPath, errors.Join(loadErrs...))
	}
	if pkg.Types == nil {
		return nil, fmt.Errorf("%w: %s: no type information", ErrPackageLoad, pkgPath)
	}
	loadLogger.Info("Loaded package for introspection")
	return pkg.Types, nil
}

// Forget drops every loaded package so the next lookup reloads from source.
// A load still in flight is not cached.
func (f *PackageMethodFinder) Forget() {
	f.mu.Lock()
	f.gen++
	f.loaded = make(map[string]*types.Package)
	f.mu.Unlock()
}
