package store

const (
	saveParcelQuery = `
		MERGE (p:Parcel {id: $id})
		SET p.crs = $crs,
			p.declared_area = $declared_area,
			p.address = $address,
			p.ring = $ring
		RETURN p.id AS id
	`

	saveObservationQuery = `
		MATCH (p:Parcel {id: $parcel_id})
		MERGE (p)-[:OBSERVED_AS]->(o:Observation {source: $source, captured_at: $captured_at})
		SET o.parcel_id = $parcel_id,
			o.crs = $crs,
			o.quality = $quality,
			o.ring = $ring
		RETURN o.source AS source
	`

	saveRecordQuery = `
		MATCH (p:Parcel {id: $parcel_id})
		MERGE (p)-[:RECONCILED_AS]->(r:Discrepancy {uuid: $uuid})
		SET r.parcel_id = $parcel_id,
			r.label = $label,
			r.confidence = $confidence,
			r.registered_area = $registered_area,
			r.observed_area = $observed_area,
			r.area_delta = $area_delta,
			r.percent_delta = $percent_delta,
			r.iou = $iou,
			r.boundary_deviation = $boundary_deviation,
			r.reconciled_at = $reconciled_at
		RETURN r.uuid AS uuid
	`

	listRecordsQuery = `
		MATCH (r:Discrepancy)
		WHERE $status = '' OR r.label = $status
		RETURN r
		ORDER BY r.reconciled_at DESC
		SKIP $offset LIMIT $limit
	`

	latestRecordQuery = `
		MATCH (p:Parcel {id: $parcel_id})-[:RECONCILED_AS]->(r:Discrepancy)
		RETURN r
		ORDER BY r.reconciled_at DESC
		LIMIT 1
	`

	deleteRecordQuery = `
		MATCH (r:Discrepancy {uuid: $uuid})
		DETACH DELETE r
		RETURN count(r) AS deleted
	`

	countRecordsQuery = `
		MATCH (r:Discrepancy)
		RETURN count(r) AS total
	`

	labelStatsQuery = `
		MATCH (r:Discrepancy)
		RETURN r.label AS label, count(r) AS n, avg(r.percent_delta) AS avg_delta
	`
)
