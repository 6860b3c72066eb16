// Completion: 100% - Compilation driver complete
package main

import (
	"fmt"
	"os"
)

// The compilation driver: source text in, executable out. One
// compilation context owns the instruction chain, the assembly buffer,
// and the image for its whole lifetime; nothing is shared between runs.
//
// Statement routing: control flow, function definitions, calls, and
// string output take the direct path and ride the chain as pre-encoded
// ICAsm blobs; everything else lowers to intermediate instructions. The
// chain is assembled in program order, so the two kinds of code
// interleave exactly as written.

// entryOffset is where execution starts inside .text: the program
// prologue is the first thing assembled.
const entryOffset = 0

// Compilation holds the per-run state, mostly so tests can inspect the
// chain and image after a run.
type Compilation struct {
	Chain *InstrChain
	Image *Image
	Frame *Frame
	Syms  *SymbolTable
	Gen   *IRGenerator
	Opt   *Optimizer
}

// CompileSource compiles one source text into a fully assembled (but
// not yet resolved) image. Resolution happens during PE building, when
// section addresses exist.
func CompileSource(src string, optLevel int) (*Compilation, error) {
	toks := NewLexer(src).Tokenize()
	prog := NewParser(toks).ParseProgram()
	return CompileProgram(prog, optLevel)
}

// CompileProgram runs the backend over an already-parsed program tree.
func CompileProgram(prog *Node, optLevel int) (*Compilation, error) {
	c := &Compilation{
		Chain: NewInstrChain(),
		Image: NewImage(),
		Frame: NewFrame(),
		Syms:  NewSymbolTable(),
	}
	c.Gen = NewIRGenerator(c.Chain)
	dc := NewDirectCompiler(c.Image, c.Syms)

	// Functions are visible from anywhere in the file, so register them
	// before any call site compiles.
	for _, node := range prog.Kids {
		if node.Kind == NodeFunc {
			var params []string
			for _, kid := range node.Kids {
				if kid.Kind == NodeParam {
					params = append(params, kid.Sval)
				}
			}
			c.Syms.DefineFunc(node.Sval, params)
		}
	}

	for _, node := range prog.Kids {
		if dc.CanCompile(node) {
			ins, ok := dc.CompileStatement(node, c.Frame)
			if !ok {
				return nil, errorf(node.Line, "direct compilation of %s failed", node.Kind)
			}
			c.Chain.Append(ins)
			continue
		}
		if !c.Gen.Gen(node) {
			return nil, errorf(node.Line, "lowering of %s failed", node.Kind)
		}
	}

	asm := NewAsm(c.Image.Text)

	// program prologue with a provisional frame size
	framePos := asm.Enter(0)

	c.Opt = NewOptimizer(optLevel, c.Chain, asm, c.Image, c.Frame, c.Syms)
	c.Opt.Optimize()

	asm.text.PatchU32(framePos, uint32(alignFrame(c.Opt.FrameBytes())))

	// program epilogue: restore the frame and leave through ExitProcess
	c.Image.AddImport("KERNEL32.dll", "ExitProcess", 0)
	asm.Leave()
	asm.XorRegWithReg("rcx", "rcx") // exit code 0
	asm.SubImmFromReg("rsp", 40)
	callPos := asm.CallRipIndirect()
	c.Image.AddRef(Reference{Offset: callPos, Kind: RefRel32, Symbol: "ExitProcess"})

	if VerboseMode {
		fmt.Fprintf(os.Stderr, "compiled: %d chain instructions, %d text bytes, %d refs\n",
			c.Chain.Len(), c.Image.Text.Len(), len(c.Image.Refs()))
		for _, e := range c.Image.Exports() {
			fmt.Fprintf(os.Stderr, "  %s at text+0x%x\n", e.Name, e.Offset)
		}
	}
	if n := c.Gen.Skipped(); n > 0 {
		warnf("%d node(s) were skipped during lowering", n)
	}
	return c, nil
}

// CompileFile reads a source file and writes the executable.
func CompileFile(inputPath, outputPath string, optLevel int) error {
	src, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inputPath, err)
	}
	c, err := CompileSource(string(src), optLevel)
	if err != nil {
		return fmt.Errorf("compiling %s: %w", inputPath, err)
	}
	pb := NewPEBuilder(c.Image)
	if err := pb.WriteFile(outputPath, entryOffset); err != nil {
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}
	if !QuietMode {
		fmt.Printf("%s -> %s\n", inputPath, outputPath)
	}
	return nil
}
