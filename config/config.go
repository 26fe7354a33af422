// Copyright 2025 Tinn ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package config defines the typed configuration objects consumed by the
// component factories.
//
// Each struct is a declarative bag of options with a Type tag selecting the
// variant. Configurations are consumed exactly once, at construction; no
// component inspects its configuration afterwards. How the structs get
// populated (JSON, flags, literals) is the caller's business.
package config

// Network selects and parameterizes a network variant.
//
// Types: "fully_fused_mlp", "mlp", "resnet".
type Network struct {
	Type string `json:"type"`

	// Neurons is the hidden layer width. The fully fused variant
	// restricts it to 16, 32, 64 or 128.
	Neurons int `json:"n_neurons"`

	// HiddenLayers is the number of hidden layers ("mlp",
	// "fully_fused_mlp") or hidden layers per block ("resnet").
	HiddenLayers int `json:"n_hidden_layers"`

	// Blocks is the residual block count, "resnet" only.
	Blocks int `json:"n_blocks"`

	// Activation names the hidden activation: "none", "relu",
	// "exponential", "sine", "sigmoid", "squareplus", "softplus".
	Activation string `json:"activation"`

	// OutputActivation names the output layer activation, same set.
	OutputActivation string `json:"output_activation"`
}

// Encoding selects and parameterizes an input encoding.
//
// Types: "identity", "oneblob", "frequency", "nrc", "composite".
type Encoding struct {
	Type string `json:"type"`

	// Identity options.
	Scale  float32 `json:"scale"`
	Offset float32 `json:"offset"`

	// OneBlob bin count.
	Bins int `json:"n_bins"`

	// Frequency count.
	Frequencies int `json:"n_frequencies"`

	// Composite segments, applied to consecutive input dimension ranges.
	Segments []Segment `json:"nested"`
}

// Segment binds a nested encoding to a consecutive range of input dimensions.
type Segment struct {
	Dims     int      `json:"n_dims_to_encode"`
	Encoding Encoding `json:"encoding"`
}

// Loss selects a loss variant.
//
// Types: "l1", "l2", "relative_l2", "relative_l2_luminance",
// "cross_entropy", "variance".
type Loss struct {
	Type string `json:"type"`
}

// Optimizer selects and parameterizes an optimizer, possibly wrapping a
// nested one.
//
// Base types: "sgd", "adam", "novograd", "shampoo".
// Decorator types: "average", "batched", "exponential_decay", "lookahead"
// (all require Nested).
type Optimizer struct {
	Type string `json:"type"`

	LearningRate float32 `json:"learning_rate"`

	// SGD / Novograd.
	Momentum    float32 `json:"momentum"`
	WeightDecay float32 `json:"l2_reg"`

	// Adam / Novograd / Shampoo moments and stabilizer.
	Beta1   float32 `json:"beta1"`
	Beta2   float32 `json:"beta2"`
	Epsilon float32 `json:"epsilon"`

	// Adam generalized bound (AdaBound-style final learning rate; 0
	// disables the bound).
	AdaBoundFinalLR float32 `json:"adabound_final_learning_rate"`

	// Shampoo preconditioner block size.
	BlockSize int `json:"block_size"`

	// Average decorator: EMA smoothing factor in (0, 1).
	EMADecay float32 `json:"ema_decay"`

	// Batched decorator: nested step once per BatchSizeMultiplier calls.
	BatchSizeMultiplier int `json:"batch_size_multiplier"`

	// Exponential decay decorator.
	DecayBase     float32 `json:"decay_base"`
	DecayInterval int     `json:"decay_interval"`
	DecayStart    int     `json:"decay_start"`

	// Lookahead decorator.
	LookaheadAlpha float32 `json:"alpha"`
	LookaheadK     int     `json:"n_steps"`

	// Nested optimizer for decorator types.
	Nested *Optimizer `json:"nested"`
}

// Training bundles the sub-configurations of a full training pipeline.
type Training struct {
	Loss      Loss      `json:"loss"`
	Optimizer Optimizer `json:"optimizer"`
	Network   Network   `json:"network"`
	Encoding  Encoding  `json:"encoding"`
}
