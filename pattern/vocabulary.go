package pattern

// Functions is the built-in pattern vocabulary. Every name may be called as a
// free function, s("bd"), or chained on a pattern, .fast(2).
var Functions = []string{
	// sources
	"s", "sound", "n", "note", "freq", "stack", "cat", "seq", "fastcat", "slowcat",
	"sequence", "polymeter", "polymeterSteps", "timeCat", "arrange", "pure", "mini", "m",
	"samples", "setcps", "setCps", "setcpm", "setCpm", "hush", "irand", "run", "binary",
	"chooseCycles", "wchoose", "randcat", "wrandcat",
	// time
	"fast", "slow", "hurry", "early", "late", "ply", "segment", "iter", "iterBack",
	"palindrome", "rev", "jux", "juxBy", "off", "every", "firstOf", "lastOf", "when",
	"sometimes", "sometimesBy", "often", "rarely", "almostNever", "almostAlways",
	"someCycles", "someCyclesBy", "degrade", "degradeBy", "undegradeBy", "euclid",
	"euclidRot", "euclidLegato", "struct", "mask", "inside", "outside", "swing",
	"swingBy", "cpm", "linger", "zoom", "compress", "chunk", "chunkBack", "brak",
	"press", "pressBy", "ribbon", "clip", "legato",
	// tonal
	"scale", "transpose", "scaleTranspose", "chord", "voicing", "voicings", "rootNotes",
	"arp", "arpWith", "octave", "add", "sub", "mul", "div", "range", "rangex", "round",
	"floor", "ceil", "toBipolar", "fromBipolar", "mode", "anchor", "dict",
	// samples
	"bank", "begin", "end", "loop", "loopAt", "loopBegin", "loopEnd", "chop", "striate",
	"slice", "splice", "speed", "unit", "cut", "fit",
	// envelopes and synthesis
	"gain", "velocity", "postgain", "attack", "decay", "sustain", "release", "adsr",
	"hold", "lpf", "cutoff", "lpq", "resonance", "hpf", "hcutoff", "hpq", "bpf",
	"bandf", "bpq", "vowel", "lpenv", "hpenv", "bpenv", "ftype", "fanchor", "lpattack",
	"lpdecay", "lpsustain", "lprelease", "vib", "vibmod", "fm", "fmh", "fmattack",
	"fmdecay", "fmsustain", "fmenv", "noise", "penv", "pattack", "pdecay", "prelease",
	"wt", "warp", "partials", "phases",
	// effects
	"pan", "room", "roomsize", "size", "rsize", "roomfade", "roomlp", "roomdim", "dry",
	"delay", "delaytime", "delayfeedback", "delayfb", "orbit", "distort", "crush",
	"coarse", "shape", "compressor", "phaser", "phaserdepth", "tremolo", "duckorbit",
	"duckattack", "duckdepth", "color", "analyze", "fft",
	// visuals
	"pianoroll", "punchcard", "spiral", "scope", "tscope", "spectrum", "waveform",
	"pitchwheel", "color",
	// control
	"set", "apply", "layer", "superimpose", "echo", "echoWith", "stut", "stutWith",
	"sometimesByPost", "hush", "mute", "solo", "log", "label",
}

// Signals are continuous patterns referenced as bare identifiers, sine.range(200, 2000).
var Signals = []string{
	"sine", "sine2", "cosine", "cosine2", "saw", "saw2", "isaw", "isaw2", "square",
	"square2", "tri", "tri2", "rand", "rand2", "perlin", "brand", "mouseX", "mouseY",
	"time", "silence",
}

// celBuiltins cannot be redeclared without overlapping the standard library
// overloads, so user vocabulary with these names is ignored.
var celBuiltins = map[string]struct{}{
	"size": {}, "matches": {}, "contains": {}, "startsWith": {}, "endsWith": {},
	"int": {}, "uint": {}, "double": {}, "string": {}, "bytes": {}, "bool": {},
	"duration": {}, "timestamp": {}, "dyn": {}, "type": {}, "has": {}, "all": {},
	"exists": {}, "exists_one": {}, "map": {}, "filter": {},
}
