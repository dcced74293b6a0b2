// Package tvio connects Inputs and Outputs described by a small interface
// language, wherever they live on a shared bus.
//
// An *Output* implements the functions of its descriptor and owns its
// properties. An *Input* with a matching descriptor (same functions, same
// properties, same tag) can then:
//
//   - `Call` a function on one Output and read its result;
//   - `CallAll` to gather a result from every Output;
//   - `Trigger` or `TriggerAll` a function, and `StartListen` to its results,
//     including the ones other Inputs caused and the ones Outputs `Emit`;
//   - `UpdateProperty` to fetch a property, `StartObservation` to follow it.
//
// ## How it works
//
// Every function and property of a descriptor maps to a topic of the
// `bus.PubSub`, for example `tvio/weather/func/Forecast(string)(string)`.
// Handles announce themselves on their topics and keep a directory of the
// peers of the opposite role they hear from, so an Input knows whether it is
// `Connected` and which Output its next `Call` goes to.
//
// Nothing ever blocks: results, listened calls and property changes land in
// single-slot buffers backed by a FIFO, which the caller polls, or waits on
// through `Changed`.
//
// ## Buses
//
// `bus.NewMemory` keeps everything in the process. `gossipbus` gossips over a
// Serf cluster, `p2pbus` rides libp2p GossipSub and `redisbus` uses Redis
// Pub/Sub. Delivery is only as good as the bus: a Runtime never retries.
//
// ## Design Principles
//
// > APIs MUST NOT model an *infallible* network. Peers come and go, and a
// > request may never be answered: callers decide how long they wait.
package tvio

// Version of the runtime and its wire format.
const Version = "0.1.0"
