// Package dsp implements the per-voice signal-processing nodes that plug into
// an audiocore.ProcessorChain: biquad low/high-pass filters, a VBAP
// spatializer with Doppler pitch, a Schroeder/Freeverb reverb bus, and the
// splitter node that feeds the reverb send in parallel with the dry path.
//
// Every node operates on "pcm_f32le" interleaved AudioData buffers and is
// safe to call from the audio thread's processing loop. The Process paths
// are not allocation-free: the filter, splitter and spatializer nodes
// allocate their output buffers on every call, and the reverb's pre-delay
// allocates small byte slices per frame.
package dsp
