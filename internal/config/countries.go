package config

import "fmt"

// Endpoints holds the vendor endpoints for a single country
type Endpoints struct {
	// APIBaseURL is the OESP web API root (session, channels, listings, recordings)
	APIBaseURL string
	// PersonalizationURLFormat lists the household's devices; %s is the household id
	PersonalizationURLFormat string
	// MQTTBroker is the host of the MQTT-over-websocket broker
	MQTTBroker string
}

var countryEndpoints = map[string]Endpoints{
	"nl": {
		APIBaseURL:               "https://web-api-prod-obo.horizon.tv/oesp/v4/NL/nld/web",
		PersonalizationURLFormat: "https://prod.spark.ziggogo.tv/nld/web/personalization-service/v1/customer/%s/devices",
		MQTTBroker:               "obomsg.prod.nl.horizon.tv",
	},
	"ch": {
		APIBaseURL:               "https://web-api-prod-obo.horizon.tv/oesp/v3/CH/eng/web",
		PersonalizationURLFormat: "https://prod.spark.upctv.ch/deu/web/personalization-service/v1/customer/%s/devices",
		MQTTBroker:               "obomsg.prod.ch.horizon.tv",
	},
	"be-nl": {
		APIBaseURL:               "https://web-api-prod-obo.horizon.tv/oesp/v4/BE/nld/web",
		PersonalizationURLFormat: "https://prod.spark.telenettv.be/nld/web/personalization-service/v1/customer/%s/devices",
		MQTTBroker:               "obomsg.prod.be.horizon.tv",
	},
	"be-fr": {
		APIBaseURL:               "https://web-api-prod-obo.horizon.tv/oesp/v4/BE/fr/web",
		PersonalizationURLFormat: "https://prod.spark.telenettv.be/fr/web/personalization-service/v1/customer/%s/devices",
		MQTTBroker:               "obomsg.prod.be.horizon.tv",
	},
	"at": {
		APIBaseURL:               "https://prod.oesp.magentatv.at/oesp/v3/AT/deu/web",
		PersonalizationURLFormat: "https://prod.spark.magentatv.at/deu/web/personalization-service/v1/customer/%s/devices",
		MQTTBroker:               "obomsg.prod.at.horizon.tv",
	},
}

// EndpointsFor returns the endpoints for a country code
func EndpointsFor(country string) (Endpoints, error) {
	ep, ok := countryEndpoints[country]
	if !ok {
		return Endpoints{}, fmt.Errorf("unsupported country %q", country)
	}
	return ep, nil
}
