//go:build windows

package webgpu

// tileSize is the workgroup width of the fused kernel: one thread per batch
// sample, one workgroup per batch tile. It must match the batch granularity
// of the CPU fused engine.
const tileSize = 128

// maxFusedWidth bounds the per-thread activation registers in the kernel.
const maxFusedWidth = 128

// fusedInferenceShader evaluates every layer of a fused network for one
// sample per thread. Activations live in thread-private registers for the
// whole pass; only the final layer writes to global memory. Weight panels
// stay in storage because a 128-wide layer exceeds the portable workgroup
// memory limit.
//
// Activation codes match the engine's activation enumeration: 0 none,
// 1 relu, 2 exponential, 3 sine, 4 sigmoid, 5 squareplus, 6 softplus.
const fusedInferenceShader = `
struct Params {
    in_dims: u32,
    out_dims: u32,
    width: u32,
    hidden_layers: u32,
    act: u32,
    out_act: u32,
}

@group(0) @binding(0) var<storage, read> weights: array<f32>;
@group(0) @binding(1) var<storage, read> input: array<f32>;
@group(0) @binding(2) var<storage, read_write> output: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;

fn activate(code: u32, x: f32) -> f32 {
    switch code {
        case 1u: { return max(x, 0.0); }
        case 2u: { return exp(x); }
        case 3u: { return sin(x); }
        case 4u: { return 1.0 / (1.0 + exp(-x)); }
        case 5u: { return 0.5 * (x + sqrt(x * x + 4.0)); }
        case 6u: { return log(1.0 + exp(x)); }
        default: { return x; }
    }
}

@compute @workgroup_size(128)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let sample = gid.x;
    var cur: array<f32, 128>;
    var nxt: array<f32, 128>;

    // Input layer lifts the sample to the fused width.
    var off = 0u;
    for (var o = 0u; o < params.width; o = o + 1u) {
        var sum = 0.0;
        for (var i = 0u; i < params.in_dims; i = i + 1u) {
            sum = sum + weights[off + o * params.in_dims + i] * input[sample * params.in_dims + i];
        }
        cur[o] = activate(params.act, sum);
    }
    off = off + params.width * params.in_dims;

    // Square hidden layers.
    for (var l = 1u; l < params.hidden_layers; l = l + 1u) {
        for (var o = 0u; o < params.width; o = o + 1u) {
            var sum = 0.0;
            for (var i = 0u; i < params.width; i = i + 1u) {
                sum = sum + weights[off + o * params.width + i] * cur[i];
            }
            nxt[o] = activate(params.act, sum);
        }
        off = off + params.width * params.width;
        for (var o = 0u; o < params.width; o = o + 1u) {
            cur[o] = nxt[o];
        }
    }

    // Output projection.
    for (var o = 0u; o < params.out_dims; o = o + 1u) {
        var sum = 0.0;
        for (var i = 0u; i < params.width; i = i + 1u) {
            sum = sum + weights[off + o * params.width + i] * cur[i];
        }
        output[sample * params.out_dims + o] = activate(params.out_act, sum);
    }
}
`
