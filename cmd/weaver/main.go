// weaver plans and executes the fiber weave for a valve leaflet.
//
// Usage:
//
//	weaver plan     --machine rig.cfg --job leaflet.toml
//	weaver gcode    --machine rig.cfg --job leaflet.toml -o leaflet.gcode
//	weaver simulate --machine rig.cfg --clean-every 40
//	weaver run      --machine rig.cfg --device /dev/ttyACM0 --journal runs.db
//	weaver run      --journal runs.db --resume <run-id>
//	weaver runs     --journal runs.db
//
// Every flag can also come from .weaver.yaml or a WEAVE_* environment
// variable (WEAVE_MACHINE, WEAVE_METRICS_ADDR, ...).
package main

func main() {
	Execute()
}
