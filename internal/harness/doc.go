// Package harness runs sync conformance scenarios.
//
// A scenario declares a labelled source tree and an optional destination,
// then runs import, edit and update steps against a real workspace backed
// by an in-memory store. Labels stand in for identities: source and
// destination labels hash to fixed identities, and after an import a
// source label resolves to the destination node it was copied to.
//
// # Scenario Format
//
//	name: rename_propagates
//	description: "Upstream renames reach the instance"
//	source:
//	  root: Lamp
//	  nodes:
//	    Lamp: { children: [Bulb] }
//	    Bulb:
//	      components:
//	        light: { lumens: 800 }
//	steps:
//	  - import: {}
//	  - edit_source:
//	      rename: { Bulb: LED }
//	  - update: { policy: remote-as-new-base }
//	assertions:
//	  - type: name
//	    node: Bulb
//	    equals: LED
//
// # Determinism
//
// Identities minted by imports and updates come from a sequential
// generator and every run starts from an empty database, so traces are
// identical across runs and can be compared against golden files.
package harness
