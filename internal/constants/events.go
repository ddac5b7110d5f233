package constants

// Telemetry event descriptions. Events that carry a value are format strings.
const (
	EventSimulationStarted = "SIMULATION STARTED: VERSION: %s, RELEASE DATE %s"
	EventRuntime           = "Go runtime: %s %s/%s"
	EventDependencies      = "Dependencies: %s"

	EventNetworkLoaded   = "network file loaded, Projection: %s"
	EventTopologyCreated = "network topology created"
	EventLayerLoaded     = "%s file %s Loaded, Projection: %s"
	EventDemandInserted  = "Origins and Destinations Inserted."
	EventGraphCreated    = "Graphs Created."

	EventBetweenness   = "Betweenness estimated."
	EventAccessibility = "Accessibility calculated."

	EventOutputSaved           = "Output saved"
	EventSimulationOutputSaved = "Simulation Output saved: ALL DONE"
	EventAccessibilitySaved    = "Output saved: ALL DONE"
)
